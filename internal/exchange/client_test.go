package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenInterestSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"openInterest":"1234.5"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	v, err := c.OpenInterest(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}
	if v != 1234.5 {
		t.Errorf("expected 1234.5, got %v", v)
	}
}

func TestGetJSONReturns404AsErrNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.OpenInterest(context.Background(), "BTCUSDT")
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetJSONReturns403AsErrConfigurationWithoutRetrying(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.OpenInterest(context.Background(), "BTCUSDT")
	if err != ErrConfiguration {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly one attempt on 403 (no retry), got %d", calls)
	}
}

func TestGetJSONRetriesOn429ThenSucceeds(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"openInterest":"99"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	v, err := c.OpenInterest(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}
	if v != 99 {
		t.Errorf("expected 99 after the retry, got %v", v)
	}
	if calls != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", calls)
	}
}

func TestLongShortRatioEmptyBodyIsNotFound(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.LongShortRatio(context.Background(), "BTCUSDT", "5m")
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for an empty result set, got %v", err)
	}
	if gotPath != "/futures/data/topLongShortPositionRatio" {
		t.Errorf("expected the top-traders position-ratio endpoint, got %s", gotPath)
	}
}
