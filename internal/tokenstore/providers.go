package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// =============================================================================
// MEMORY (session-scoped)
// =============================================================================

// MemoryProvider lives as long as the process, like a browser tab's
// session storage.
type MemoryProvider struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryProvider creates an empty session-scoped provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{data: make(map[string]string)}
}

func (m *MemoryProvider) Name() string   { return "session" }
func (m *MemoryProvider) Writable() bool { return true }

func (m *MemoryProvider) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data[key], nil
}

func (m *MemoryProvider) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryProvider) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// =============================================================================
// FILE (durable)
// =============================================================================

// FileProvider persists a flat JSON object to disk. Every write replaces the
// file atomically so a crash never leaves a truncated store behind.
type FileProvider struct {
	path string

	mu sync.Mutex
}

// NewFileProvider creates a durable provider backed by path. The parent
// directory is created on first write.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

func (f *FileProvider) Name() string   { return "durable" }
func (f *FileProvider) Writable() bool { return true }

func (f *FileProvider) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return "", err
	}
	return data[key], nil
}

func (f *FileProvider) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return err
	}
	data[key] = value
	return f.save(data)
}

func (f *FileProvider) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := data[key]; !ok {
		return nil
	}
	delete(data, key)
	return f.save(data)
}

// load must be called with mu held. A missing file is an empty store.
func (f *FileProvider) load() (map[string]string, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.path, err)
	}

	data := make(map[string]string)
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", f.path, err)
	}
	return data, nil
}

// save must be called with mu held.
func (f *FileProvider) save(data map[string]string) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding store: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	return os.Rename(tmp.Name(), f.path)
}

// =============================================================================
// REDIS (durable, shared between daemons)
// =============================================================================

// RedisProvider stores values under a key prefix so several sessions can
// share one redis instance.
type RedisProvider struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisProvider creates a durable provider. A zero ttl keeps keys until
// they are deleted.
func NewRedisProvider(client *redis.Client, prefix string, ttl time.Duration) *RedisProvider {
	return &RedisProvider{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisProvider) Name() string   { return "redis" }
func (r *RedisProvider) Writable() bool { return true }

func (r *RedisProvider) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

func (r *RedisProvider) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.prefix+key, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisProvider) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// =============================================================================
// COOKIE (backend-owned)
// =============================================================================

// CookieProvider reads cookies the backend set on the shared HTTP client's
// jar. The client never originates a cookie, so Set always fails. Delete
// expires the cookie locally wherever the backend scoped it.
type CookieProvider struct {
	jar http.CookieJar
	url *url.URL
}

// NewCookieProvider reads cookies that jar holds for u.
func NewCookieProvider(jar http.CookieJar, u *url.URL) *CookieProvider {
	return &CookieProvider{jar: jar, url: u}
}

func (c *CookieProvider) Name() string   { return "cookie" }
func (c *CookieProvider) Writable() bool { return false }

func (c *CookieProvider) Get(_ context.Context, key string) (string, error) {
	for _, cookie := range c.jar.Cookies(c.url) {
		if cookie.Name == key {
			return cookie.Value, nil
		}
	}
	return "", nil
}

func (c *CookieProvider) Set(context.Context, string, string) error {
	return ErrReadOnly
}

// Delete expires key under every scope the jar can return for c.url: host-only
// or any parent domain, at "/" or any prefix of the URL path.
func (c *CookieProvider) Delete(_ context.Context, key string) error {
	var expired []*http.Cookie
	for _, domain := range cookieDomains(c.url.Hostname()) {
		for _, path := range cookiePaths(c.url.EscapedPath()) {
			expired = append(expired, &http.Cookie{Name: key, Domain: domain, Path: path, MaxAge: -1})
		}
	}
	c.jar.SetCookies(c.url, expired)

	for _, cookie := range c.jar.Cookies(c.url) {
		if cookie.Name == key {
			return fmt.Errorf("cookie %s survived expiry", key)
		}
	}
	return nil
}

// cookieDomains lists "" (host-only) followed by host and its parent domains.
func cookieDomains(host string) []string {
	domains := []string{""}
	if host == "" || net.ParseIP(host) != nil {
		return domains
	}
	for d := host; strings.Contains(d, "."); d = d[strings.IndexByte(d, '.')+1:] {
		domains = append(domains, d)
	}
	return domains
}

// cookiePaths lists the cookie paths that path-match p.
func cookiePaths(p string) []string {
	paths := []string{"/"}
	for i := 1; i < len(p); i++ {
		if p[i] == '/' {
			paths = append(paths, p[:i], p[:i+1])
		}
	}
	if len(p) > 1 && !strings.HasSuffix(p, "/") {
		paths = append(paths, p)
	}
	return paths
}
