package download

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Pradhumn115/ruma-core/internal/storage"
)

// Scenario 1 of §8: a download state left "downloading" by an unclean
// shutdown, with a partial file already on disk shorter than the remote
// size, reconciles to paused (not ready - it's still short) and the
// worker resumes it from the byte offset already on disk rather than
// restarting from zero.
func TestReconcileArtifacts_ResumeAfterKill(t *testing.T) {
	content := []byte(strings.Repeat("R", 512*1024))
	server := spawnArtifactRangeServer(content, true)
	defer server.Close()

	e, _ := newTestManager(t)
	dir := e.artifactDir("acme/killed")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	partial := content[:len(content)/2]
	if err := os.WriteFile(filepath.Join(dir, "weights.bin"), partial, 0o644); err != nil {
		t.Fatalf("writing partial file: %v", err)
	}

	d := &storage.DownloadState{
		ID:      "acme/killed",
		ModelID: "acme/killed",
		Kind:    storage.ArtifactSingleFile,
		Files:   []string{"weights.bin"},
		Status:  storage.DownloadDownloading,
		FileProgress: map[string]*storage.FileProgress{
			"weights.bin": {URL: server.URL, Downloaded: int64(len(partial))},
		},
	}
	if err := e.artifacts.Put(d); err != nil {
		t.Fatalf("seeding artifact state: %v", err)
	}

	e.ReconcileArtifacts()

	reconciled, ok := e.artifacts.Snapshot("acme/killed")
	if !ok {
		t.Fatal("state disappeared during reconciliation")
	}
	if reconciled.Status != storage.DownloadPaused {
		t.Fatalf("expected paused after reconciliation, got %q", reconciled.Status)
	}
	if reconciled.FileProgress["weights.bin"].Downloaded != int64(len(partial)) {
		t.Errorf("expected downloaded to reflect on-disk bytes, got %d", reconciled.FileProgress["weights.bin"].Downloaded)
	}

	if r := e.ResumeArtifact("acme/killed"); r != "resumed" {
		t.Fatalf("expected resumed, got %q", r)
	}
	final := waitForArtifactStatus(t, e, "acme/killed", storage.DownloadReady, 10*time.Second)
	if final.Downloaded != int64(len(content)) {
		t.Errorf("expected full content after resume, got %d of %d bytes", final.Downloaded, len(content))
	}

	data, err := os.ReadFile(filepath.Join(dir, "weights.bin"))
	if err != nil {
		t.Fatalf("reading resumed file: %v", err)
	}
	if string(data) != string(content) {
		t.Error("resumed download produced corrupted content")
	}
}

// Scenario 3 of §8: a local file larger than the remote Content-Length
// (e.g. a previous run wrote a longer file, or the remote was replaced
// with a smaller artifact) is truncated to the remote size instead of
// being treated as already complete.
func TestReconcileArtifacts_TruncatesOversizeLocal(t *testing.T) {
	remoteContent := []byte(strings.Repeat("S", 1024))
	server := spawnArtifactRangeServer(remoteContent, true)
	defer server.Close()

	e, _ := newTestManager(t)
	dir := e.artifactDir("acme/oversize")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	oversized := append(append([]byte{}, remoteContent...), []byte(strings.Repeat("X", 4096))...)
	path := filepath.Join(dir, "weights.bin")
	if err := os.WriteFile(path, oversized, 0o644); err != nil {
		t.Fatalf("writing oversize file: %v", err)
	}

	d := &storage.DownloadState{
		ID:      "acme/oversize",
		ModelID: "acme/oversize",
		Kind:    storage.ArtifactSingleFile,
		Files:   []string{"weights.bin"},
		Status:  storage.DownloadPaused,
		FileProgress: map[string]*storage.FileProgress{
			"weights.bin": {URL: server.URL, Downloaded: int64(len(oversized))},
		},
	}
	if err := e.artifacts.Put(d); err != nil {
		t.Fatalf("seeding artifact state: %v", err)
	}

	e.ReconcileArtifacts()

	reconciled, ok := e.artifacts.Snapshot("acme/oversize")
	if !ok {
		t.Fatal("state disappeared during reconciliation")
	}
	if reconciled.Status != storage.DownloadReady {
		t.Fatalf("expected ready once truncated to the complete remote size, got %q", reconciled.Status)
	}
	if reconciled.FileProgress["weights.bin"].Downloaded != int64(len(remoteContent)) {
		t.Errorf("expected downloaded truncated to %d, got %d", len(remoteContent), reconciled.FileProgress["weights.bin"].Downloaded)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != int64(len(remoteContent)) {
		t.Errorf("expected on-disk file truncated to %d bytes, got %d", len(remoteContent), info.Size())
	}
}
