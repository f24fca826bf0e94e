package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ggonzalez94/agent-sched/internal/cache"
	"github.com/ggonzalez94/agent-sched/internal/httpx"
)

func TestDiscoverParsesTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("chain_id"); got != "1" {
			t.Errorf("expected chain_id=1, got %q", got)
		}
		_, _ = w.Write([]byte(`{"tokens":[
			{"address":"0xAAA0000000000000000000000000000000000001","created_at_block":19000001},
			{"address":"0xAAA0000000000000000000000000000000000002","created_at_block":19000002},
			{"address":""}
		]}`))
	}))
	defer server.Close()

	client := New(httpx.New(2*time.Second, 0), server.URL, "", zap.NewNop())
	tokens, err := client.Discover(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(tokens))
	}
	if tokens[0].CreatedAtBlock != 19000001 {
		t.Fatalf("expected creation block metadata, got %+v", tokens[0])
	}
}

func TestDiscoverSendsBearerKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"tokens":[]}`))
	}))
	defer server.Close()

	client := New(httpx.New(2*time.Second, 0), server.URL, "secret", zap.NewNop())
	if _, err := client.Discover(context.Background(), 1, nil); err != nil {
		t.Fatalf("expected authorized request, got %v", err)
	}
}

func TestDiscoverServesFromCache(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"tokens":[{"address":"0xAAA0000000000000000000000000000000000001"}]}`))
	}))
	defer server.Close()

	tmp := t.TempDir()
	store, err := cache.Open(filepath.Join(tmp, "cache.db"), filepath.Join(tmp, "cache.lock"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer store.Close()

	client := New(httpx.New(2*time.Second, 0), server.URL, "", zap.NewNop(), WithCache(store))
	for i := 0; i < 3; i++ {
		tokens, err := client.Discover(context.Background(), 1, nil)
		if err != nil || len(tokens) != 1 {
			t.Fatalf("Discover %d failed: %v (%d tokens)", i, err, len(tokens))
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 upstream call with warm cache, got %d", calls.Load())
	}
}

func TestDiscoverUnconfiguredReturnsError(t *testing.T) {
	client := New(httpx.New(time.Second, 0), "", "", zap.NewNop())
	if _, err := client.Discover(context.Background(), 1, nil); err == nil {
		t.Fatal("expected error for unconfigured discovery")
	}
}
