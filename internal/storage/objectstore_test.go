package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

func TestNewObjectStore_RequiresBucket(t *testing.T) {
	if _, err := NewObjectStore(Config{Endpoint: "http://localhost:9000"}); err == nil {
		t.Fatal("expected error for empty bucket")
	}
}

func TestPutObject_UsesPathStyle(t *testing.T) {
	var mu sync.Mutex
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		mu.Lock()
		method, path = r.Method, r.URL.Path
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store, err := NewObjectStore(Config{
		Endpoint:  srv.URL,
		Bucket:    "logs-archive",
		AccessKey: "test",
		SecretKey: "test",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.PutObject(context.Background(), "logs/acct/AppLog/x.ndjson.gz", []byte("data"), "application/x-ndjson", "gzip"); err != nil {
		t.Fatalf("PutObject: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if method != http.MethodPut {
		t.Errorf("method = %s", method)
	}
	if path != "/logs-archive/logs/acct/AppLog/x.ndjson.gz" {
		t.Errorf("path = %s", path)
	}
}
