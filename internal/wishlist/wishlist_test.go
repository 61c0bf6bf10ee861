package wishlist

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"storefront/internal/adapter"
	"storefront/internal/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestList_Toggle(t *testing.T) {
	ctx := context.Background()
	var removed []string
	mock := &adapter.Mock{
		AddToWishlistFunc: func(ctx context.Context, id string) (*model.Product, error) {
			return &model.Product{ID: id, Name: "server copy"}, nil
		},
		RemoveFromWishlistFunc: func(ctx context.Context, id string) error {
			removed = append(removed, id)
			return nil
		},
	}
	list := New(mock, quietLogger())

	in, err := list.Toggle(ctx, model.Product{ID: "p1"})
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if !in || !list.Contains("p1") {
		t.Fatal("first Toggle should add p1")
	}
	if got := list.Items()[0].Name; got != "server copy" {
		t.Errorf("Name = %q, want server copy", got)
	}

	in, err = list.Toggle(ctx, model.Product{ID: "p1"})
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if in || list.Len() != 0 {
		t.Errorf("second Toggle should remove p1, items = %+v", list.Items())
	}
	if len(removed) != 1 || removed[0] != "p1" {
		t.Errorf("RemoveFromWishlist calls = %v, want [p1]", removed)
	}
}

func TestList_AddKeepsLocalCopyWhenServerReturnsNone(t *testing.T) {
	mock := &adapter.Mock{
		AddToWishlistFunc: func(ctx context.Context, id string) (*model.Product, error) {
			return nil, nil
		},
	}
	list := New(mock, quietLogger())
	if err := list.Add(context.Background(), model.Product{ID: "p2", Name: "Tee"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if items := list.Items(); len(items) != 1 || items[0].Name != "Tee" {
		t.Errorf("Items = %+v, want local product", items)
	}
}

func TestList_LoadFailureEmpties(t *testing.T) {
	calls := 0
	mock := &adapter.Mock{
		GetWishlistFunc: func(ctx context.Context) ([]model.Product, error) {
			calls++
			if calls == 1 {
				return []model.Product{{ID: "p1"}}, nil
			}
			return nil, model.NewStatusError(500, "")
		},
	}
	list := New(mock, quietLogger())
	if _, err := list.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := list.Load(context.Background()); err == nil {
		t.Fatal("second Load should fail")
	}
	if list.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after failed load", list.Len())
	}
}

func TestList_UnauthorizedIsLoginRequired(t *testing.T) {
	mock := &adapter.Mock{
		AddToWishlistFunc: func(ctx context.Context, id string) (*model.Product, error) {
			return nil, model.NewStatusError(401, "")
		},
	}
	list := New(mock, quietLogger())
	err := list.Add(context.Background(), model.Product{ID: "p1"})
	if !errors.Is(err, model.ErrLoginRequired) {
		t.Errorf("Add() error = %v, want ErrLoginRequired", err)
	}
	if list.Len() != 0 {
		t.Error("wishlist mutated after 401")
	}
}

func TestList_ClearRemote(t *testing.T) {
	ctx := context.Background()
	list := New(&adapter.Mock{}, quietLogger())
	if err := list.Add(ctx, model.Product{ID: "p1"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := list.ClearRemote(ctx); err != nil {
		t.Fatalf("ClearRemote: %v", err)
	}
	if list.Len() != 0 {
		t.Errorf("Len() = %d, want 0", list.Len())
	}
}
