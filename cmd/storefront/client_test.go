package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storefront/internal/cart"
	"storefront/internal/model"
)

func testDaemon(t *testing.T, status int, body string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	prev := daemonURL
	daemonURL = srv.URL + "/"
	t.Cleanup(func() { daemonURL = prev })
}

func TestCallDecodesData(t *testing.T) {
	testDaemon(t, http.StatusOK, `{"success":true,"data":{"items":[{"_id":"p1","name":"Mug","price":10,"quantity":2}],"totals":{"subtotal":2000,"total":2000},"version":3}}`)

	var snap cart.Snapshot
	if err := call("GET", "/cart", nil, &snap); err != nil {
		t.Fatalf("call: %v", err)
	}
	if len(snap.Items) != 1 || snap.Totals.Total != 2000 || snap.Version != 3 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestCallFailedEnvelope(t *testing.T) {
	testDaemon(t, http.StatusBadRequest, `{"success":false,"message":"invalid shipping details","errors":{"zipCode":"required","email":"invalid"}}`)

	err := call("POST", "/checkout", map[string]any{}, nil)

	var de *daemonError
	if !errors.As(err, &de) {
		t.Fatalf("error = %v, want *daemonError", err)
	}
	if de.Status != http.StatusBadRequest {
		t.Errorf("Status = %d", de.Status)
	}
	want := "invalid shipping details\n  email: invalid\n  zipCode: required"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestCallUnreadableResponse(t *testing.T) {
	testDaemon(t, http.StatusBadGateway, `<html>bad gateway</html>`)

	err := call("GET", "/cart", nil, nil)
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("error = %v, want HTTP 502", err)
	}
}

func TestFormatCart(t *testing.T) {
	disableColors()

	if got := formatCart(cart.Snapshot{}); got != "  (empty)\n" {
		t.Errorf("empty cart = %q", got)
	}

	snap := cart.Snapshot{
		Items: []model.LineItem{
			{Product: model.Product{ID: "p1", Name: "Mug", Price: 10}, Quantity: 2},
		},
		Coupon: &model.Coupon{Code: "SAVE10", DiscountPercentage: 10},
		Totals: model.Totals{Subtotal: 2000, Total: 1800},
	}
	got := formatCart(snap)
	for _, want := range []string{"Mug", "x2", "$20.00", "SAVE10 (-10%)", "Total:    $18.00"} {
		if !strings.Contains(got, want) {
			t.Errorf("formatCart missing %q:\n%s", want, got)
		}
	}
}
