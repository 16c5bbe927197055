package pricefeed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"SolSignal/internal/domain/models"
)

const solMint = "So11111111111111111111111111111111111111112"

func TestSpotPriceParsesAggregatorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("ids"); got != solMint {
			t.Errorf("ids = %q, want %q", got, solMint)
		}
		fmt.Fprintf(w, `{"data":{"%s":{"id":"%s","price":172.35,"confidence":0.99}}}`, solMint, solMint)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, 1)
	p, err := c.SpotPrice(context.Background(), models.Token{Symbol: "SOL", Mint: solMint})
	if err != nil {
		t.Fatalf("spot price: %v", err)
	}
	if p.Symbol != "SOL" || p.Price != 172.35 {
		t.Fatalf("price = %+v, want SOL at 172.35", p)
	}
}

func TestSpotPriceRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprintf(w, `{"data":{"%s":{"id":"%s","price":1.01}}}`, solMint, solMint)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, 3)
	p, err := c.SpotPrice(context.Background(), models.Token{Symbol: "USDC", Mint: solMint})
	if err != nil {
		t.Fatalf("spot price after retry: %v", err)
	}
	if p.Price != 1.01 {
		t.Fatalf("price = %v, want 1.01", p.Price)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestSpotPriceRequiresMint(t *testing.T) {
	c := New("http://localhost:0", time.Second, 1)
	if _, err := c.SpotPrice(context.Background(), models.Token{Symbol: "SOL"}); err == nil {
		t.Fatal("want error for token without a mint")
	}
}

func TestSpotPriceRejectsMissingEntry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{}}`)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, 1)
	if _, err := c.SpotPrice(context.Background(), models.Token{Symbol: "SOL", Mint: solMint}); err == nil {
		t.Fatal("want error when the mint is absent from the response")
	}
}
