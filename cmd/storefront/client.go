package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"storefront/internal/model"
)

var client = &http.Client{Timeout: 60 * time.Second}

// result mirrors the daemon's response envelope with the payload left raw
// so each command decodes only what it prints.
type result struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message,omitempty"`
	Duplicate bool              `json:"duplicate,omitempty"`
	Errors    model.FieldErrors `json:"errors,omitempty"`
	Data      json.RawMessage   `json:"data,omitempty"`
}

// daemonError is a failed envelope returned by the daemon.
type daemonError struct {
	Status int
	result
}

func (e *daemonError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if len(e.Errors) == 0 {
		return msg
	}
	fields := make([]string, 0, len(e.Errors))
	for field := range e.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	var b strings.Builder
	b.WriteString(msg)
	for _, field := range fields {
		fmt.Fprintf(&b, "\n  %s: %s", field, e.Errors[field])
	}
	return b.String()
}

// call sends one request to the daemon and decodes the envelope's data
// into out when out is non-nil.
func call(method, path string, body, out any) error {
	var reqBody io.Reader
	var reqJSON []byte
	if body != nil {
		var err error
		reqJSON, err = json.MarshalIndent(body, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(reqJSON)
	}

	req, err := http.NewRequest(method, strings.TrimRight(daemonURL, "/")+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if verbose {
		printRequest(method, path, reqJSON)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if verbose {
		printResponse(resp.StatusCode, respBody, duration)
	}

	var res result
	if err := json.Unmarshal(respBody, &res); err != nil {
		return fmt.Errorf("HTTP %d: unreadable response", resp.StatusCode)
	}
	if resp.StatusCode >= 400 || !res.Success {
		return &daemonError{Status: resp.StatusCode, result: res}
	}

	if out != nil && len(res.Data) > 0 {
		if err := json.Unmarshal(res.Data, out); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
	}
	return nil
}
