package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestClientSendAndParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("ids"); got != "mint123" {
			t.Errorf("ids = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"mint123":{"price":142.5}}}`))
	}))
	defer srv.Close()

	c := NewClient(WithTimeout(2 * time.Second))
	var out struct {
		Data map[string]struct {
			Price float64 `json:"price"`
		} `json:"data"`
	}
	err := c.SendAndParse(context.Background(), &RequestOptions{
		Method: http.MethodGet,
		URL:    srv.URL,
		Query:  url.Values{"ids": {"mint123"}},
	}, &out)
	if err != nil {
		t.Fatalf("SendAndParse: %v", err)
	}
	if out.Data["mint123"].Price != 142.5 {
		t.Fatalf("price = %v", out.Data["mint123"].Price)
	}
}

func TestClientErrorCarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient()
	err := c.SendAndParse(context.Background(), &RequestOptions{Method: http.MethodGet, URL: srv.URL}, nil)
	if err == nil {
		t.Fatal("want error for 429")
	}
	if !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "rate limit exceeded") {
		t.Fatalf("error = %v", err)
	}
}

func TestClientPostsJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"symbol":"SOL"}` {
			t.Errorf("body = %s", body)
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient()
	err := c.SendAndParse(context.Background(), &RequestOptions{
		Method: http.MethodPost,
		URL:    srv.URL,
		Body:   map[string]string{"symbol": "SOL"},
	}, nil)
	if err != nil {
		t.Fatalf("SendAndParse: %v", err)
	}
}
