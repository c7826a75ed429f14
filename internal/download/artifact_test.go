package download

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Pradhumn115/ruma-core/internal/filesystem"
	"github.com/Pradhumn115/ruma-core/internal/integrity"
	"github.com/Pradhumn115/ruma-core/internal/network"
	"github.com/Pradhumn115/ruma-core/internal/security"
	"github.com/Pradhumn115/ruma-core/internal/storage"
)

// newTestManager builds a Manager wired to a temp artifact root, without
// going through NewEngine's real filesystem.GetDefaultDownloadPath lookup
// or the relational storage layer, neither of which C3's artifact path
// touches.
func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	root := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	artifacts := NewArtifactStore(filepath.Join(root, "state.json"))
	e := &Manager{
		logger:           logger,
		events:           NewEventBus(),
		httpClient:       &http.Client{},
		bandwidthManager: network.NewBandwidthManager(),
		allocator:        filesystem.NewAllocator(),
		verifier:         integrity.NewFileVerifier(),
		scanner:          security.NewArtifactTypeScanner(logger, security.NewScanner(logger)),
		artifacts:        artifacts,
		artifactRoot:     filepath.Join(root, "models"),
	}
	return e, root
}

// spawnArtifactRangeServer mirrors the teacher's spawnRangeServer but
// serves a named single file, so reconciliation/resume tests can target
// a URL independent of the request path.
func spawnArtifactRangeServer(content []byte, acceptRanges bool) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(content)))
			if acceptRanges {
				w.Header().Set("Accept-Ranges", "bytes")
			}
			w.WriteHeader(http.StatusOK)
			return
		}

		rangeHeader := r.Header.Get("Range")
		if acceptRanges && rangeHeader != "" {
			parts := strings.Split(strings.TrimPrefix(rangeHeader, "bytes="), "-")
			start, _ := strconv.Atoi(parts[0])
			end := len(content) - 1
			if len(parts) > 1 && parts[1] != "" {
				end, _ = strconv.Atoi(parts[1])
			}
			if start > end || start >= len(content) {
				w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
				return
			}
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(content)))
			w.Header().Set("Content-Length", strconv.Itoa(end-start+1))
			w.WriteHeader(http.StatusPartialContent)
			w.Write(content[start : end+1])
			return
		}

		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		w.WriteHeader(http.StatusOK)
		w.Write(content)
	}))
}

func waitForArtifactStatus(t *testing.T, e *Manager, id, status string, timeout time.Duration) storage.DownloadState {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case <-deadline:
			d, _ := e.artifacts.Snapshot(id)
			t.Fatalf("timed out waiting for status %q, last status %q (downloaded=%d total=%d)", status, d.Status, d.Downloaded, d.TotalSize)
		case <-time.After(25 * time.Millisecond):
			d, ok := e.artifacts.Snapshot(id)
			if ok && d.Status == status {
				return d
			}
		}
	}
}

// Scenario: start a multi-file artifact, let it run to completion.
func TestStartArtifact_MultiFileCompletes(t *testing.T) {
	contentA := []byte(strings.Repeat("A", 256*1024))
	contentB := []byte(strings.Repeat("B", 128*1024))
	serverA := spawnArtifactRangeServer(contentA, true)
	defer serverA.Close()
	serverB := spawnArtifactRangeServer(contentB, true)
	defer serverB.Close()

	e, _ := newTestManager(t)

	files := []ArtifactFile{
		{Name: "model.safetensors", URL: serverA.URL},
		{Name: "config.json", URL: serverB.URL},
	}
	id, result := e.StartArtifact("org/model", storage.ArtifactMultiFile, files)
	if result != "started" {
		t.Fatalf("expected started, got %q", result)
	}

	d := waitForArtifactStatus(t, e, id, storage.DownloadReady, 10*time.Second)
	if d.Downloaded != int64(len(contentA)+len(contentB)) {
		t.Errorf("expected %d downloaded bytes, got %d", len(contentA)+len(contentB), d.Downloaded)
	}

	data, err := os.ReadFile(filepath.Join(e.artifactDir("org/model"), "model.safetensors"))
	if err != nil {
		t.Fatalf("reading downloaded file: %v", err)
	}
	if string(data) != string(contentA) {
		t.Error("downloaded content does not match source")
	}
}

// Scenario: starting the same artifact twice once it's finished reports
// already_downloaded rather than re-downloading (§6.3).
func TestStartArtifact_AlreadyDownloaded(t *testing.T) {
	content := []byte(strings.Repeat("Z", 64*1024))
	server := spawnArtifactRangeServer(content, true)
	defer server.Close()

	e, _ := newTestManager(t)
	files := []ArtifactFile{{Name: "weights.bin", URL: server.URL}}

	id, result := e.StartArtifact("acme/tiny", storage.ArtifactSingleFile, files)
	if result != "started" {
		t.Fatalf("expected started, got %q", result)
	}
	waitForArtifactStatus(t, e, id, storage.DownloadReady, 10*time.Second)

	_, result2 := e.StartArtifact("acme/tiny", storage.ArtifactSingleFile, files)
	if result2 != "already_downloaded" {
		t.Errorf("expected already_downloaded, got %q", result2)
	}
}

// Scenario 4 of §8: pause immediately followed by cancel must not race
// the worker goroutine or leave it running after CancelArtifact returns.
func TestPauseThenCancelArtifact(t *testing.T) {
	content := make([]byte, 64*1024*1024)
	server := spawnArtifactRangeServer(content, true)
	defer server.Close()

	e, _ := newTestManager(t)
	files := []ArtifactFile{{Name: "big.bin", URL: server.URL}}
	id, _ := e.StartArtifact("acme/big", storage.ArtifactSingleFile, files)

	time.Sleep(10 * time.Millisecond)

	if r := e.PauseArtifact(id); r != "pausing" {
		t.Fatalf("expected pausing, got %q", r)
	}
	if r := e.CancelArtifact(id, true); r != "cancelled" {
		t.Fatalf("expected cancelled, got %q", r)
	}

	if _, ok := e.handleFor(id); ok {
		t.Error("worker handle still registered after cancel")
	}
	if _, ok := e.artifacts.Snapshot(id); ok {
		t.Error("artifact state should have been deleted on cancel with cleanup")
	}
}

// Scenario 2 of §8: a server that ignores Range requests and always
// replies 200 must still produce a correct, complete file.
func TestDownloadArtifactFile_ServerIgnoresRange(t *testing.T) {
	content := []byte("whole file every time, no partial content support")
	server := spawnArtifactRangeServer(content, false)
	defer server.Close()

	e, _ := newTestManager(t)
	files := []ArtifactFile{{Name: "plain.txt", URL: server.URL}}
	id, _ := e.StartArtifact("acme/plain", storage.ArtifactSingleFile, files)

	waitForArtifactStatus(t, e, id, storage.DownloadReady, 5*time.Second)

	data, err := os.ReadFile(filepath.Join(e.artifactDir("acme/plain"), "plain.txt"))
	if err != nil {
		t.Fatalf("reading file: %v", err)
	}
	if string(data) != string(content) {
		t.Errorf("content mismatch: got %q", data)
	}
}

// Control-plane result enums for states that cannot be paused/resumed.
func TestArtifactControl_InvalidTransitions(t *testing.T) {
	e, _ := newTestManager(t)

	if r := e.PauseArtifact("nonexistent"); r != "not_found" {
		t.Errorf("expected not_found, got %q", r)
	}
	if r := e.ResumeArtifact("nonexistent"); r != "not_found" {
		t.Errorf("expected not_found, got %q", r)
	}
	if r := e.DeleteArtifact("nonexistent"); r != "deleted" {
		t.Errorf("expected deleted for already-gone id, got %q", r)
	}

	content := []byte("small")
	server := spawnArtifactRangeServer(content, true)
	defer server.Close()
	files := []ArtifactFile{{Name: "f.bin", URL: server.URL}}
	id, _ := e.StartArtifact("acme/small", storage.ArtifactSingleFile, files)
	waitForArtifactStatus(t, e, id, storage.DownloadReady, 5*time.Second)

	if r := e.PauseArtifact(id); r != "cannot_pause_"+storage.DownloadReady {
		t.Errorf("expected cannot_pause_ready, got %q", r)
	}
}
