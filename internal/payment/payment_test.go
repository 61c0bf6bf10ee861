package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"storefront/internal/adapter"
	"storefront/internal/cart"
	"storefront/internal/model"
	"storefront/internal/paymentui"
	"storefront/internal/tokenstore"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture wires a coordinator to a loaded cart, an in-memory artifact store,
// and a backend that mints numbered secrets.
type fixture struct {
	coord     *Coordinator
	cart      *cart.Aggregate
	store     *tokenstore.Store
	mock      *adapter.Mock
	mu        sync.Mutex
	minted    int
	submitted []string
}

func newFixture(t *testing.T, items []model.LineItem, submit paymentui.SubmitFunc) *fixture {
	t.Helper()
	f := &fixture{store: tokenstore.New(quietLogger(), tokenstore.NewMemoryProvider())}
	f.mock = &adapter.Mock{
		GetCartFunc: func(ctx context.Context) ([]model.LineItem, error) {
			return items, nil
		},
		CreatePaymentIntentFunc: func(ctx context.Context, req model.PaymentIntentRequest) (*model.PaymentIntent, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.minted++
			return &model.PaymentIntent{ClientSecret: fmt.Sprintf("pi_%d_secret_x", f.minted)}, nil
		},
	}
	f.cart = cart.New(f.mock, nil, quietLogger())
	if _, err := f.cart.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	recording := paymentui.SubmitFunc(func(ctx context.Context, req paymentui.SubmitRequest) paymentui.Result {
		f.mu.Lock()
		f.submitted = append(f.submitted, req.ClientSecret)
		f.mu.Unlock()
		return submit(ctx, req)
	})
	f.coord = New(Options{
		Backend:   f.mock,
		Cart:      f.cart,
		Submitter: recording,
		Artifacts: f.store,
		ReturnURL: "http://localhost/purchase-success",
		Logger:    quietLogger(),
	})
	return f
}

func (f *fixture) mintCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.minted
}

var twoItems = []model.LineItem{
	{Product: model.Product{ID: "p1", Price: 10}, Quantity: 2},
	{Product: model.Product{ID: "p2", Price: 5}, Quantity: 1},
}

func okSubmit(ctx context.Context, req paymentui.SubmitRequest) paymentui.Result {
	return paymentui.Result{Kind: paymentui.OK, PaymentIntentID: paymentui.IntentID(req.ClientSecret)}
}

func TestCoordinator_InitializeEmptyCart(t *testing.T) {
	f := newFixture(t, nil, okSubmit)
	_, err := f.coord.Initialize(context.Background())
	if !errors.Is(err, model.ErrEmptyCart) {
		t.Fatalf("Initialize() error = %v, want ErrEmptyCart", err)
	}
	if f.mintCount() != 0 {
		t.Errorf("CreatePaymentIntent called %d times, want 0", f.mintCount())
	}
}

func TestCoordinator_Initialize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, twoItems, okSubmit)

	s, err := f.coord.Initialize(ctx)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if s.State != Pending || s.ClientSecret != "pi_1_secret_x" {
		t.Errorf("Session = %+v, want pending(pi_1_secret_x)", s)
	}
	if s.IntentID != "pi_1" {
		t.Errorf("IntentID = %q, want pi_1", s.IntentID)
	}
	if s.Amount != 2500 {
		t.Errorf("Amount = %d, want 2500", s.Amount)
	}
	if got := f.store.Lookup(ctx, tokenstore.KeyClientSecret); got != "pi_1_secret_x" {
		t.Errorf("cached secret = %q", got)
	}
}

func TestCoordinator_InitializeBackendFailure(t *testing.T) {
	f := newFixture(t, twoItems, okSubmit)
	f.mock.CreatePaymentIntentFunc = func(ctx context.Context, req model.PaymentIntentRequest) (*model.PaymentIntent, error) {
		return nil, model.NewStatusError(500, "")
	}

	s, err := f.coord.Initialize(context.Background())
	if err == nil {
		t.Fatal("Initialize should fail")
	}
	if s.State != Uninitialized || s.LastError != InitFailedMessage {
		t.Errorf("Session = %+v, want uninitialized with init failure", s)
	}
}

func TestCoordinator_SubmitSuccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, twoItems, okSubmit)
	if _, err := f.coord.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	s, err := f.coord.Submit(ctx, "pm_card_visa")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if s.State != Succeeded {
		t.Errorf("State = %v, want succeeded", s.State)
	}
	if !f.cart.Snapshot().Empty() {
		t.Error("cart not cleared after success")
	}
	if got := f.store.Lookup(ctx, tokenstore.KeyClientSecret); got != "" {
		t.Errorf("cached secret = %q, want purged", got)
	}
	if got := f.store.Lookup(ctx, tokenstore.KeyPaymentIntentID); got != "" {
		t.Errorf("cached intent id = %q, want purged", got)
	}
}

func TestCoordinator_CardErrorKeepsSecret(t *testing.T) {
	ctx := context.Background()
	declined := true
	f := newFixture(t, twoItems, func(ctx context.Context, req paymentui.SubmitRequest) paymentui.Result {
		if declined {
			return paymentui.Result{Kind: paymentui.CardError, Message: "Your card was declined."}
		}
		return okSubmit(ctx, req)
	})
	if _, err := f.coord.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	s, err := f.coord.Submit(ctx, "pm_card_chargeDeclined")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if s.State != Pending || s.Failure != Recoverable {
		t.Errorf("Session = %+v, want pending on the same secret", s)
	}
	if s.LastError != "Your card was declined." {
		t.Errorf("LastError = %q, want verbatim card message", s.LastError)
	}
	if s.ClientSecret != "pi_1_secret_x" || !s.CanSubmit() {
		t.Errorf("secret should remain usable, got %+v", s)
	}
	if f.mintCount() != 1 {
		t.Errorf("CreatePaymentIntent called %d times, want 1", f.mintCount())
	}

	declined = false
	if s, _ = f.coord.Submit(ctx, "pm_card_visa"); s.State != Succeeded {
		t.Errorf("retry State = %v, want succeeded", s.State)
	}
	if len(f.submitted) != 2 || f.submitted[1] != "pi_1_secret_x" {
		t.Errorf("submitted = %v, want same secret twice", f.submitted)
	}
}

func TestCoordinator_DuplicateSelfHeal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, twoItems, func(ctx context.Context, req paymentui.SubmitRequest) paymentui.Result {
		if req.ClientSecret == "pi_1_secret_x" {
			return paymentui.Result{Kind: paymentui.Conflict, Message: "already used"}
		}
		return okSubmit(ctx, req)
	})
	if _, err := f.coord.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	s, err := f.coord.Submit(ctx, "pm_card_visa")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if s.State != Pending || s.ClientSecret != "pi_2_secret_x" {
		t.Fatalf("Session = %+v, want pending(pi_2_secret_x)", s)
	}
	if s.Notice != DuplicateNotice {
		t.Errorf("Notice = %q, want duplicate notice", s.Notice)
	}
	if f.mintCount() != 2 {
		t.Errorf("CreatePaymentIntent called %d times, want exactly 2", f.mintCount())
	}
	if len(f.submitted) != 1 {
		t.Errorf("submitted = %v, old secret must not be retried", f.submitted)
	}
	if got := f.store.Lookup(ctx, tokenstore.KeyClientSecret); got != "pi_2_secret_x" {
		t.Errorf("cached secret = %q, want replacement", got)
	}

	if s, _ = f.coord.Submit(ctx, "pm_card_visa"); s.State != Succeeded {
		t.Errorf("second Submit State = %v, want succeeded", s.State)
	}
	if f.submitted[1] != "pi_2_secret_x" {
		t.Errorf("second submit used %q, want new secret", f.submitted[1])
	}
}

func TestCoordinator_DuplicateReinitFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, twoItems, func(ctx context.Context, req paymentui.SubmitRequest) paymentui.Result {
		return paymentui.Result{Kind: paymentui.Conflict}
	})
	if _, err := f.coord.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	f.mock.CreatePaymentIntentFunc = func(ctx context.Context, req model.PaymentIntentRequest) (*model.PaymentIntent, error) {
		return nil, model.NewStatusError(503, "")
	}

	s, _ := f.coord.Submit(ctx, "pm_card_visa")
	if s.State != Failed || s.Failure != Duplicate {
		t.Errorf("Session = %+v, want failed(duplicate)", s)
	}
	if s.LastError != ReinitFailedNotice {
		t.Errorf("LastError = %q, want reinit failure notice", s.LastError)
	}
	if s.CanSubmit() {
		t.Error("a dead session must not be submittable")
	}
	if _, err := f.coord.Submit(ctx, "pm_card_visa"); !errors.Is(err, ErrNoSession) {
		t.Errorf("Submit() error = %v, want ErrNoSession", err)
	}
}

func TestCoordinator_UnexpectedFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, twoItems, func(ctx context.Context, req paymentui.SubmitRequest) paymentui.Result {
		return paymentui.Result{Kind: paymentui.Unknown, Message: "socket closed"}
	})
	if _, err := f.coord.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	s, _ := f.coord.Submit(ctx, "pm_card_visa")
	if s.State != Failed || s.Failure != Unexpected {
		t.Errorf("Session = %+v, want failed(unexpected)", s)
	}
	if s.LastError != model.UnexpectedErrorMessage {
		t.Errorf("LastError = %q, want generic message", s.LastError)
	}
	if f.mintCount() != 1 || len(f.submitted) != 1 {
		t.Errorf("unexpected failure must not auto-retry: minted=%d submitted=%v", f.mintCount(), f.submitted)
	}
}

func TestCoordinator_SubmitInProgress(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})
	f := newFixture(t, twoItems, func(ctx context.Context, req paymentui.SubmitRequest) paymentui.Result {
		close(started)
		<-release
		return okSubmit(ctx, req)
	})
	if _, err := f.coord.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	done := make(chan Session)
	go func() {
		s, _ := f.coord.Submit(ctx, "pm_card_visa")
		done <- s
	}()
	<-started

	if _, err := f.coord.Submit(ctx, "pm_card_visa"); !errors.Is(err, ErrSubmitInProgress) {
		t.Errorf("concurrent Submit() error = %v, want ErrSubmitInProgress", err)
	}
	if _, err := f.coord.Initialize(ctx); !errors.Is(err, ErrSubmitInProgress) {
		t.Errorf("Initialize() during submit error = %v, want ErrSubmitInProgress", err)
	}

	close(release)
	if s := <-done; s.State != Succeeded {
		t.Errorf("State = %v, want succeeded", s.State)
	}
}

func TestCoordinator_InitializeRacingSubmit(t *testing.T) {
	ctx := context.Background()
	submitStarted := make(chan struct{})
	submitRelease := make(chan struct{})
	f := newFixture(t, twoItems, func(ctx context.Context, req paymentui.SubmitRequest) paymentui.Result {
		close(submitStarted)
		<-submitRelease
		return okSubmit(ctx, req)
	})
	if _, err := f.coord.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	minting := make(chan struct{})
	mintRelease := make(chan struct{})
	f.mock.CreatePaymentIntentFunc = func(ctx context.Context, req model.PaymentIntentRequest) (*model.PaymentIntent, error) {
		close(minting)
		<-mintRelease
		return &model.PaymentIntent{ClientSecret: "pi_2_secret_x"}, nil
	}

	initDone := make(chan error)
	go func() {
		_, err := f.coord.Initialize(ctx)
		initDone <- err
	}()
	<-minting

	submitDone := make(chan Session)
	go func() {
		s, _ := f.coord.Submit(ctx, "pm_card_visa")
		submitDone <- s
	}()
	<-submitStarted

	close(mintRelease)
	if err := <-initDone; !errors.Is(err, ErrSubmitInProgress) {
		t.Errorf("Initialize() error = %v, want ErrSubmitInProgress", err)
	}
	s := f.coord.Session()
	if s.State != Submitting || s.ClientSecret != "pi_1_secret_x" {
		t.Errorf("Session = %+v, want submitting(pi_1_secret_x)", s)
	}
	if got := f.store.Lookup(ctx, tokenstore.KeyClientSecret); got != "pi_1_secret_x" {
		t.Errorf("cached secret = %q, want pi_1_secret_x", got)
	}
	if _, err := f.coord.Submit(ctx, "pm_card_visa"); !errors.Is(err, ErrSubmitInProgress) {
		t.Errorf("second Submit() error = %v, want ErrSubmitInProgress", err)
	}

	close(submitRelease)
	if s := <-submitDone; s.State != Succeeded || s.IntentID != "pi_1" {
		t.Errorf("Session = %+v, want succeeded(pi_1)", s)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.submitted) != 1 || f.submitted[0] != "pi_1_secret_x" {
		t.Errorf("submitted = %v, want [pi_1_secret_x]", f.submitted)
	}
}

func TestCoordinator_MountDuringSubmit(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})
	f := newFixture(t, twoItems, func(ctx context.Context, req paymentui.SubmitRequest) paymentui.Result {
		close(started)
		<-release
		return okSubmit(ctx, req)
	})
	if _, err := f.coord.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	done := make(chan Session)
	go func() {
		s, _ := f.coord.Submit(ctx, "pm_card_visa")
		done <- s
	}()
	<-started

	if err := f.coord.Mount(ctx); !errors.Is(err, ErrSubmitInProgress) {
		t.Errorf("Mount() error = %v, want ErrSubmitInProgress", err)
	}
	if got := f.store.Lookup(ctx, tokenstore.KeyClientSecret); got != "pi_1_secret_x" {
		t.Errorf("cached secret = %q, want kept while submitting", got)
	}

	close(release)
	if s := <-done; s.State != Succeeded {
		t.Errorf("State = %v, want succeeded", s.State)
	}
	if !f.cart.Snapshot().Empty() {
		t.Error("confirmed payment should clear the cart")
	}
}

func TestCoordinator_MountPurgesStaleArtifacts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, twoItems, okSubmit)
	if err := f.store.Put(ctx, tokenstore.KeyClientSecret, "pi_old_secret_x"); err != nil {
		t.Fatal(err)
	}

	if err := f.coord.Mount(ctx); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	if got := f.store.Lookup(ctx, tokenstore.KeyClientSecret); got != "" {
		t.Errorf("cached secret = %q, want purged on mount", got)
	}
}

func TestCoordinator_UnmountDiscardsInflightResult(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})
	f := newFixture(t, twoItems, func(ctx context.Context, req paymentui.SubmitRequest) paymentui.Result {
		close(started)
		<-release
		return okSubmit(ctx, req)
	})
	if err := f.coord.Mount(ctx); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if _, err := f.coord.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	done := make(chan struct{})
	go func() {
		f.coord.Submit(ctx, "pm_card_visa")
		close(done)
	}()
	<-started
	f.coord.Unmount(ctx)
	close(release)
	<-done

	if s := f.coord.Session(); s.State != Uninitialized {
		t.Errorf("State = %v, want uninitialized after unmount", s.State)
	}
	if f.cart.Snapshot().Empty() {
		t.Error("late result after unmount must not clear the cart")
	}
}

func TestCoordinator_EnsureCurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, twoItems, okSubmit)

	s, err := f.coord.EnsureCurrent(ctx)
	if err != nil {
		t.Fatalf("EnsureCurrent: %v", err)
	}
	if s.ClientSecret != "pi_1_secret_x" {
		t.Fatalf("ClientSecret = %q", s.ClientSecret)
	}

	if s, _ = f.coord.EnsureCurrent(ctx); s.ClientSecret != "pi_1_secret_x" || f.mintCount() != 1 {
		t.Errorf("unchanged cart should keep the session, minted %d", f.mintCount())
	}

	if _, err := f.cart.Toggle(ctx, model.Product{ID: "p3", Price: 1}); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	s, err = f.coord.EnsureCurrent(ctx)
	if err != nil {
		t.Fatalf("EnsureCurrent: %v", err)
	}
	if s.ClientSecret != "pi_2_secret_x" {
		t.Errorf("ClientSecret = %q, want a new session after cart change", s.ClientSecret)
	}
	if s.Amount != 2600 {
		t.Errorf("Amount = %d, want 2600", s.Amount)
	}
}

func TestStateText(t *testing.T) {
	for st := Uninitialized; st <= Failed; st++ {
		text, _ := st.MarshalText()
		var got State
		if err := got.UnmarshalText(text); err != nil || got != st {
			t.Errorf("round trip %v: got %v, err %v", st, got, err)
		}
	}

	var s State
	if err := s.UnmarshalText([]byte("refunded")); err == nil {
		t.Error("expected error for unknown state")
	}
}
