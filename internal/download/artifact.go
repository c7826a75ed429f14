package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Pradhumn115/ruma-core/internal/network"
	"github.com/Pradhumn115/ruma-core/internal/storage"
)

// ArtifactFile pairs a file name with its source URL - the "files"
// argument named in §6.3's start(model_id, kind, files). Only the name
// is persisted on DownloadState.Files; the URL seeds the matching
// FileProgress entry.
type ArtifactFile struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// artifactChunkSize matches §4.1's "stream in chunks (~8 KiB)".
const artifactChunkSize = 8 * 1024

// artifactCheckpointBytes is §4.1's "every few MiB of progress" save
// interval.
const artifactCheckpointBytes = 4 * 1024 * 1024

// artifactHeadTimeout bounds the HEAD probe used both at start (for
// pre-allocation) and during reconciliation.
const artifactHeadTimeout = 10 * time.Second

type artifactFlags struct {
	mu     sync.Mutex
	pause  bool
	cancel bool
}

func (f *artifactFlags) setPause(v bool) {
	f.mu.Lock()
	f.pause = v
	f.mu.Unlock()
}

func (f *artifactFlags) setCancel(v bool) {
	f.mu.Lock()
	f.cancel = v
	f.mu.Unlock()
}

func (f *artifactFlags) snapshot() (paused, cancelled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pause, f.cancel
}

// artifactHandle tracks one live worker goroutine so pause/cancel can
// reach it and so cancel can bound-wait for it to exit.
type artifactHandle struct {
	flags *artifactFlags
	done  chan struct{}
}

// ArtifactProgressResult is the response shape for the progress(id)
// control-plane operation.
type ArtifactProgressResult struct {
	Downloaded int64   `json:"downloaded"`
	Total      int64   `json:"total"`
	Status     string  `json:"status"`
	Percentage float64 `json:"percentage"`
	Error      string  `json:"error,omitempty"`
}

func (e *Manager) artifactDir(modelID string) string {
	return filepath.Join(e.artifactRoot, filepath.FromSlash(modelID))
}

func (e *Manager) handleFor(id string) (*artifactHandle, bool) {
	v, ok := e.artifactWorkers.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*artifactHandle), true
}

func (e *Manager) userAgentOrDefault() string {
	if ua := e.GetUserAgent(); ua != "" {
		return ua
	}
	return GenericUserAgent
}

// StartArtifact implements §6.3's start(model_id, kind, files) op.
func (e *Manager) StartArtifact(modelID, kind string, files []ArtifactFile) (id string, result string) {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	id = storage.DeriveDownloadID(modelID, kind, names)

	if d, ok := e.artifacts.Snapshot(id); ok {
		switch d.Status {
		case storage.DownloadReady:
			return id, "already_downloaded"
		case storage.DownloadDownloading:
			return id, "already_downloading"
		default:
			e.setArtifactStatus(id, storage.DownloadDownloading)
			e.spawnArtifactWorker(id)
			return id, "resumed"
		}
	}

	dir := e.artifactDir(modelID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		e.logger.Error("creating artifact directory", "id", id, "error", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	progress := make(map[string]*storage.FileProgress, len(files))
	sizes := make(map[string]int64, len(files))
	for _, f := range files {
		fp := &storage.FileProgress{URL: f.URL}
		if sz := e.headSize(f.URL); sz > 0 {
			fp.TotalSize = sz
			sizes[f.Name] = sz
		}
		progress[f.Name] = fp
	}
	if len(sizes) > 0 {
		if err := e.allocator.AllocateArtifact(dir, sizes); err != nil {
			e.logger.Warn("artifact disk-space check failed, continuing", "id", id, "error", err)
		}
	}

	state := &storage.DownloadState{
		ID:           id,
		ModelID:      modelID,
		Kind:         kind,
		Files:        names,
		Status:       storage.DownloadDownloading,
		CreatedAt:    now,
		UpdatedAt:    now,
		FileProgress: progress,
	}
	state.Recompute()
	state.Status = storage.DownloadDownloading // Recompute may have set ready on an empty artifact
	if err := e.artifacts.Put(state); err != nil {
		e.logger.Error("persisting new artifact state", "id", id, "error", err)
	}

	e.bandwidthManager.SetTaskPriority(id, network.PriorityForArtifactKind(kind))
	e.spawnArtifactWorker(id)
	return id, "started"
}

// PauseArtifact implements §6.3's pause(id) op.
func (e *Manager) PauseArtifact(id string) string {
	d, ok := e.artifacts.Snapshot(id)
	if !ok {
		return "not_found"
	}
	if d.Status != storage.DownloadDownloading {
		return "cannot_pause_" + d.Status
	}
	if h, ok := e.handleFor(id); ok {
		h.flags.setPause(true)
	}
	return "pausing"
}

// ResumeArtifact implements §6.3's resume(id) op.
func (e *Manager) ResumeArtifact(id string) string {
	d, ok := e.artifacts.Snapshot(id)
	if !ok {
		return "not_found"
	}
	switch d.Status {
	case storage.DownloadDownloading:
		return "resumed"
	case storage.DownloadPaused:
		if h, ok := e.handleFor(id); ok {
			h.flags.setPause(false)
			return "resumed"
		}
		e.setArtifactStatus(id, storage.DownloadDownloading)
		e.spawnArtifactWorker(id)
		return "resumed"
	case storage.DownloadCancelled, storage.DownloadError:
		e.setArtifactStatus(id, storage.DownloadDownloading)
		e.spawnArtifactWorker(id)
		return "resumed"
	default:
		return "cannot_resume_" + d.Status
	}
}

// CancelArtifact implements §6.3's cancel(id, cleanup?) op.
func (e *Manager) CancelArtifact(id string, cleanup bool) string {
	d, ok := e.artifacts.Snapshot(id)
	if !ok {
		return "not_found"
	}

	if h, ok := e.handleFor(id); ok {
		h.flags.setCancel(true)
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			e.logger.Warn("artifact worker did not exit within bound", "id", id)
		}
	}
	e.setArtifactStatus(id, storage.DownloadCancelled)
	e.events.Emit("artifact_cancelled", map[string]interface{}{"id": id})

	dir := e.artifactDir(d.ModelID)
	if cleanup {
		if err := os.RemoveAll(dir); err != nil {
			e.logger.Error("removing artifact directory on cancel", "id", id, "error", err)
		}
		if err := e.artifacts.Delete(id); err != nil {
			e.logger.Error("deleting artifact state on cancel", "id", id, "error", err)
		}
	} else {
		for _, name := range d.Files {
			os.Remove(filepath.Join(dir, name))
		}
	}
	return "cancelled"
}

// DeleteArtifact implements §6.3's delete(id) op.
func (e *Manager) DeleteArtifact(id string) string {
	d, ok := e.artifacts.Snapshot(id)
	if !ok {
		return "deleted"
	}
	if d.Status == storage.DownloadDownloading {
		e.CancelArtifact(id, true)
		return "deleted"
	}

	dir := e.artifactDir(d.ModelID)
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		e.logger.Error("deleting artifact directory", "id", id, "error", err)
		return "error"
	}
	if err := e.artifacts.Delete(id); err != nil {
		e.logger.Error("deleting artifact state", "id", id, "error", err)
		return "error"
	}
	return "deleted"
}

// ArtifactProgress implements §6.3's progress(id) op.
func (e *Manager) ArtifactProgress(id string) (ArtifactProgressResult, bool) {
	d, ok := e.artifacts.Snapshot(id)
	if !ok {
		return ArtifactProgressResult{}, false
	}
	var pct float64
	if d.TotalSize > 0 {
		pct = float64(d.Downloaded) / float64(d.TotalSize) * 100
	}
	return ArtifactProgressResult{
		Downloaded: d.Downloaded,
		Total:      d.TotalSize,
		Status:     d.Status,
		Percentage: pct,
		Error:      d.ErrorMessage,
	}, true
}

// ListArtifacts implements §6.3's list() op.
func (e *Manager) ListArtifacts() []storage.DownloadState {
	states := e.artifacts.List()
	out := make([]storage.DownloadState, len(states))
	for i, d := range states {
		out[i] = *d
	}
	return out
}

func (e *Manager) setArtifactStatus(id, status string) {
	e.artifacts.Mutate(id, func(d *storage.DownloadState) { d.Status = status })
	if err := e.artifacts.Persist(id); err != nil {
		e.logger.Error("persisting artifact status", "id", id, "status", status, "error", err)
	}
}

func (e *Manager) failArtifact(id string, err error) {
	e.artifacts.Mutate(id, func(d *storage.DownloadState) {
		d.Status = storage.DownloadError
		d.ErrorMessage = err.Error()
	})
	if perr := e.artifacts.Persist(id); perr != nil {
		e.logger.Error("persisting artifact failure", "id", id, "error", perr)
	}
	e.events.Emit("artifact_error", map[string]interface{}{"id": id, "error": err.Error()})
	e.logger.Error("artifact download failed", "id", id, "error", err)
}

func (e *Manager) spawnArtifactWorker(id string) {
	flags := &artifactFlags{}
	handle := &artifactHandle{flags: flags, done: make(chan struct{})}
	e.artifactWorkers.Store(id, handle)

	go func() {
		defer close(handle.done)
		defer e.artifactWorkers.Delete(id)
		e.runArtifactWorker(id, flags)
	}()
}

type fileOutcome int

const (
	fileDone fileOutcome = iota
	fileCancelled
	fileFailed
)

// runArtifactWorker is §4.1's "download algorithm (per worker)": one
// artifact's files, downloaded sequentially by a single goroutine.
func (e *Manager) runArtifactWorker(id string, flags *artifactFlags) {
	defer func() {
		if r := recover(); r != nil {
			e.failArtifact(id, fmt.Errorf("worker panic: %v", r))
		}
	}()

	d, ok := e.artifacts.Snapshot(id)
	if !ok {
		return
	}
	dir := e.artifactDir(d.ModelID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		e.failArtifact(id, fmt.Errorf("creating artifact directory: %w", err))
		return
	}
	e.events.Emit("artifact_started", map[string]interface{}{"id": id})

	for _, name := range d.Files {
		cur, ok := e.artifacts.Snapshot(id)
		if !ok {
			return
		}
		fp := cur.FileProgress[name]
		if fp == nil || fp.Complete {
			continue
		}

		switch e.downloadArtifactFile(id, dir, name, fp, flags) {
		case fileCancelled, fileFailed:
			return
		}
	}

	e.artifacts.Mutate(id, func(d *storage.DownloadState) { d.Recompute() })
	if err := e.artifacts.Persist(id); err != nil {
		e.logger.Error("persisting completed artifact state", "id", id, "error", err)
	}

	final, ok := e.artifacts.Snapshot(id)
	if ok && final.Status == storage.DownloadReady {
		e.finalizeArtifact(id, dir, final)
		e.events.Emit("artifact_complete", map[string]interface{}{"id": id})
	}
}

// finalizeArtifact runs the optional single-file integrity/type checks
// once every file in the artifact is complete.
func (e *Manager) finalizeArtifact(id, dir string, d storage.DownloadState) {
	if d.Kind == storage.ArtifactSingleFile && len(d.Files) == 1 {
		path := filepath.Join(dir, d.Files[0])
		if d.ExpectedHash != "" {
			if err := e.verifier.Verify(path, d.HashAlgorithm, d.ExpectedHash); err != nil {
				e.failArtifact(id, fmt.Errorf("integrity check failed: %w", err))
				return
			}
		}
		if err := e.scanner.ScanFile(context.Background(), path); err != nil {
			e.logger.Warn("artifact scan flagged file", "id", id, "file", path, "error", err)
		}
	}
}

// downloadArtifactFile implements §4.1 steps 2a-2g for a single file.
func (e *Manager) downloadArtifactFile(id, dir, name string, fp *storage.FileProgress, flags *artifactFlags) fileOutcome {
	path := filepath.Join(dir, name)

	existing := int64(0)
	if info, err := os.Stat(path); err == nil {
		existing = info.Size()
	}
	if fp.TotalSize > 0 && existing >= fp.TotalSize {
		e.artifacts.Mutate(id, func(d *storage.DownloadState) {
			if f := d.FileProgress[name]; f != nil {
				f.Complete = true
				f.Downloaded = f.TotalSize
			}
		})
		return fileDone
	}

	req, err := http.NewRequest(http.MethodGet, fp.URL, nil)
	if err != nil {
		e.failArtifact(id, err)
		return fileFailed
	}
	req.Header.Set("User-Agent", e.userAgentOrDefault())
	if existing > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", existing))
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		e.failArtifact(id, err)
		return fileFailed
	}

	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		resp.Body.Close()
		os.Remove(path)
		existing = 0
		req2, _ := http.NewRequest(http.MethodGet, fp.URL, nil)
		req2.Header.Set("User-Agent", e.userAgentOrDefault())
		resp, err = e.httpClient.Do(req2)
		if err != nil {
			e.failArtifact(id, err)
			return fileFailed
		}
	}
	defer resp.Body.Close()

	var total int64
	appendMode := true
	switch resp.StatusCode {
	case http.StatusPartialContent:
		total = parseContentRangeTotal(resp.Header.Get("Content-Range"))
		if total == 0 {
			total = existing + resp.ContentLength
		}
	case http.StatusOK:
		existing = 0
		appendMode = false
		total = resp.ContentLength
	default:
		e.failArtifact(id, fmt.Errorf("unexpected status %d downloading %s", resp.StatusCode, name))
		return fileFailed
	}

	openFlags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		openFlags |= os.O_APPEND
	} else {
		openFlags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, openFlags, 0o644)
	if err != nil {
		e.failArtifact(id, err)
		return fileFailed
	}
	defer f.Close()

	e.artifacts.Mutate(id, func(d *storage.DownloadState) {
		if pf := d.FileProgress[name]; pf != nil {
			if total > 0 {
				pf.TotalSize = total
			}
			pf.Downloaded = existing
		}
	})

	ctx := context.Background()
	buf := make([]byte, artifactChunkSize)
	downloaded := existing
	sinceCheckpoint := int64(0)
	pausedRecorded := false

	for {
		paused, cancelled := flags.snapshot()
		if cancelled {
			e.setArtifactStatus(id, storage.DownloadCancelled)
			return fileCancelled
		}
		if paused {
			if !pausedRecorded {
				e.setArtifactStatus(id, storage.DownloadPaused)
				pausedRecorded = true
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if pausedRecorded {
			e.setArtifactStatus(id, storage.DownloadDownloading)
			pausedRecorded = false
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if err := e.bandwidthManager.Wait(ctx, id, n); err != nil {
				e.failArtifact(id, err)
				return fileFailed
			}
			if _, err := f.Write(buf[:n]); err != nil {
				e.failArtifact(id, err)
				return fileFailed
			}
			downloaded += int64(n)
			sinceCheckpoint += int64(n)

			e.artifacts.Mutate(id, func(d *storage.DownloadState) {
				if pf := d.FileProgress[name]; pf != nil {
					pf.Downloaded = downloaded
				}
				d.Recompute()
				if d.Status == storage.DownloadReady {
					d.Status = storage.DownloadDownloading // not all files done yet
				}
			})
			if sinceCheckpoint >= artifactCheckpointBytes {
				if err := e.artifacts.Persist(id); err != nil {
					e.logger.Error("checkpointing artifact state", "id", id, "error", err)
				}
				sinceCheckpoint = 0
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			e.failArtifact(id, readErr)
			return fileFailed
		}
	}

	e.artifacts.Mutate(id, func(d *storage.DownloadState) {
		if pf := d.FileProgress[name]; pf != nil {
			pf.Complete = true
			pf.Downloaded = downloaded
			if pf.TotalSize == 0 {
				pf.TotalSize = downloaded
			}
		}
	})
	if err := e.artifacts.Persist(id); err != nil {
		e.logger.Error("persisting completed file progress", "id", id, "file", name, "error", err)
	}
	return fileDone
}

func parseContentRangeTotal(cr string) int64 {
	if cr == "" {
		return 0
	}
	parts := strings.Split(cr, "/")
	if len(parts) != 2 {
		return 0
	}
	total, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0
	}
	return total
}
