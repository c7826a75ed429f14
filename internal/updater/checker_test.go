package updater

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func spawnManifestServer(t *testing.T, rel Release) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rel)
	}))
}

func TestChecker_LatestNewerVersion(t *testing.T) {
	server := spawnManifestServer(t, Release{Version: "v1.2.0", URL: "http://example.invalid/ruma.bin", SHA256: "abc"})
	defer server.Close()

	c := NewChecker(server.URL)
	rel, err := c.Latest(context.Background(), "v1.1.0")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if rel == nil {
		t.Fatal("expected a release, got nil")
	}
	if rel.Version != "v1.2.0" {
		t.Errorf("expected version v1.2.0, got %s", rel.Version)
	}
}

func TestChecker_LatestUpToDate(t *testing.T) {
	server := spawnManifestServer(t, Release{Version: "v1.1.0"})
	defer server.Close()

	c := NewChecker(server.URL)
	rel, err := c.Latest(context.Background(), "v1.1.0")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if rel != nil {
		t.Errorf("expected no update, got %+v", rel)
	}
}

func TestChecker_LatestServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewChecker(server.URL)
	if _, err := c.Latest(context.Background(), "v1.0.0"); err == nil {
		t.Fatal("expected error on server failure")
	}
}
