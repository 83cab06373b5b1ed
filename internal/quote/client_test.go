package quote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func chartBody(symbol string, price float64, ts int64) string {
	return fmt.Sprintf(`{"chart":{"result":[{"meta":{"currency":"USD","symbol":%q,"regularMarketPrice":%v,"regularMarketTime":%d}}],"error":null}}`,
		symbol, price, ts)
}

func TestClient_Fetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/AAPL" {
			t.Errorf("path = %q, want /AAPL", r.URL.Path)
		}
		if ua := r.Header.Get("User-Agent"); ua != "test-agent" {
			t.Errorf("User-Agent = %q, want test-agent", ua)
		}
		fmt.Fprint(w, chartBody("AAPL", 151.25, 1764968400))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, WithUserAgent("test-agent"))

	q, err := c.Fetch(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if q.Symbol != "AAPL" {
		t.Errorf("Symbol = %q, want AAPL", q.Symbol)
	}
	if q.Price != 151.25 {
		t.Errorf("Price = %v, want 151.25", q.Price)
	}
	if q.ObservedAt != time.Unix(1764968400, 0) {
		t.Errorf("ObservedAt = %v, want %v", q.ObservedAt, time.Unix(1764968400, 0))
	}
}

func TestClient_Fetch_EmptyResult(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":[],"error":null}}`)
	}))
	defer ts.Close()

	c := NewClient(ts.URL)

	_, err := c.Fetch(context.Background(), "NOPE")
	if !errors.Is(err, ErrNoQuote) {
		t.Errorf("error = %v, want ErrNoQuote", err)
	}
}

func TestClient_Fetch_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, chartBody("AAPL", 150, 0))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, WithRetries(3, time.Millisecond))

	q, err := c.Fetch(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Fetch failed after retries: %v", err)
	}
	if q.Price != 150 {
		t.Errorf("Price = %v, want 150", q.Price)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestClient_Fetch_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, WithRetries(3, time.Millisecond))

	_, err := c.Fetch(context.Background(), "AAPL")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 (404 is not retryable)", got)
	}
}

func TestClient_Fetch_ContextCancelDuringBackoff(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, WithRetries(5, time.Minute))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Fetch(ctx, "AAPL")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
}

func TestLoadSymbols(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stocks.txt")
	content := "AAPL\n\n# index funds\nmsft\nAAPL\n  TSLA  \n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write symbols file: %v", err)
	}

	symbols, err := LoadSymbols(path)
	if err != nil {
		t.Fatalf("LoadSymbols failed: %v", err)
	}

	want := []string{"AAPL", "MSFT", "TSLA"}
	if len(symbols) != len(want) {
		t.Fatalf("symbols = %v, want %v", symbols, want)
	}
	for i := range want {
		if symbols[i] != want[i] {
			t.Errorf("symbols[%d] = %q, want %q", i, symbols[i], want[i])
		}
	}
}

func TestLoadSymbols_MissingFile(t *testing.T) {
	if _, err := LoadSymbols(filepath.Join(t.TempDir(), "absent.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}
