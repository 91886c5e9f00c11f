package orders

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSubmitGameOrdersDecodesPerOrderResults(t *testing.T) {
	var gotAuth string
	var gotPath string
	var gotReqs []Request

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReqs); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode([]Result{
			{Success: true, Order: &Placed{ID: "ord-1", SelectionID: 1, Price: 1, Size: 100}},
			{Success: false, Message: "insufficient funds", OrderRequest: &requestEcho{SelectionID: 2}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, func() string { return "tok-123" })
	results, err := c.SubmitGameOrders(context.Background(), "crash-1", []Request{
		{Selection: 1, Size: 100, Price: 1, Side: "b"},
		{Selection: 2, Size: 250, Price: 1, Side: "b"},
	})
	if err != nil {
		t.Fatalf("SubmitGameOrders: %v", err)
	}

	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotPath != "/orders/game/crash-1" {
		t.Errorf("path = %q", gotPath)
	}
	if len(gotReqs) != 2 {
		t.Errorf("server received %d orders", len(gotReqs))
	}

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if !results[0].Success || results[0].SelectionID() != 1 {
		t.Errorf("results[0] = %+v", results[0])
	}
	if results[1].Success || results[1].SelectionID() != 2 || results[1].Message != "insufficient funds" {
		t.Errorf("results[1] = %+v", results[1])
	}
}

func TestSubmitGameOrdersAcceptsSingleObjectResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Result{Success: true, Order: &Placed{ID: "ord-9", SelectionID: 1}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	results, err := c.SubmitGameOrders(context.Background(), "crash-1", []Request{{Selection: 1, Size: 100}})
	if err != nil {
		t.Fatalf("SubmitGameOrders: %v", err)
	}
	if len(results) != 1 || results[0].Order.ID != "ord-9" {
		t.Errorf("results = %+v", results)
	}
}

func TestSubmitGameOrdersUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, func() string { return "expired" })
	_, err := c.SubmitGameOrders(context.Background(), "crash-1", []Request{{Selection: 1, Size: 100}})
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestSubmitGameOrdersServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "market suspended", http.StatusConflict)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.SubmitGameOrders(context.Background(), "crash-1", []Request{{Selection: 1, Size: 100}})
	if err == nil {
		t.Fatal("expected an error for a 409 response")
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Error("409 must not map to ErrUnauthorized")
	}
}

func TestSubmitBulkOrders(t *testing.T) {
	var gotPath string
	var raw []map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	err := c.SubmitBulkOrders(context.Background(), "seven-up", []BulkRequest{
		{Side: "b", Size: 75, RunnerName: "2", Price: 4.5, Selection: 2, BetType: "game"},
	})
	if err != nil {
		t.Fatalf("SubmitBulkOrders: %v", err)
	}
	if gotPath != "/orders/game-bulk/seven-up" {
		t.Errorf("path = %q", gotPath)
	}
	// The bulk endpoint expects the API's mixed field casing.
	if len(raw) != 1 {
		t.Fatalf("server received %d orders", len(raw))
	}
	for _, key := range []string{"side", "size", "runnerName", "Selection", "BetType"} {
		if _, ok := raw[0][key]; !ok {
			t.Errorf("wire payload missing %q: %v", key, raw[0])
		}
	}
}
