package download

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/Pradhumn115/ruma-core/internal/network"
	"github.com/Pradhumn115/ruma-core/internal/storage"
)

// ReconcileArtifacts implements §4.1's startup reconciliation: every
// DownloadState left `downloading` or `paused` by an unclean shutdown
// is brought back into agreement with what's actually on disk before
// any worker is allowed to resume it. Called once from Start(), after
// NewEngine.
func (e *Manager) ReconcileArtifacts() {
	for _, d := range e.artifacts.List() {
		if d.Status != storage.DownloadDownloading && d.Status != storage.DownloadPaused {
			continue
		}
		e.reconcileOne(d)
	}
}

func (e *Manager) reconcileOne(d *storage.DownloadState) {
	dir := e.artifactDir(d.ModelID)
	allComplete := len(d.Files) > 0

	for _, name := range d.Files {
		fp := d.FileProgress[name]
		if fp == nil {
			fp = &storage.FileProgress{}
			d.FileProgress[name] = fp
		}
		if fp.Complete {
			continue
		}

		path := filepath.Join(dir, name)
		local := int64(0)
		if info, err := os.Stat(path); err == nil {
			local = info.Size()
		}
		remote := e.headSize(fp.URL)

		switch {
		case remote > 0 && local > remote:
			if err := os.Truncate(path, remote); err != nil {
				e.logger.Error("truncating oversize local file", "id", d.ID, "file", name, "error", err)
			} else {
				local = remote
			}
			fallthrough
		case remote > 0 && local == remote:
			fp.Complete = true
			fp.Downloaded = remote
			fp.TotalSize = remote
		default:
			fp.Downloaded = local
			if remote > 0 {
				fp.TotalSize = remote
			}
		}

		if !fp.Complete {
			allComplete = false
		}
	}

	d.Recompute()
	if allComplete {
		d.Status = storage.DownloadReady
	} else {
		d.Status = storage.DownloadPaused
	}
	if err := e.artifacts.Put(d); err != nil {
		e.logger.Error("persisting reconciled artifact state", "id", d.ID, "error", err)
	}
}

// headSize issues a HEAD request, making up to 3 attempts with
// exponential backoff between them (per §7's "transient network" retry policy), returning the
// remote Content-Length or 0 if it can't be determined.
func (e *Manager) headSize(url string) int64 {
	if url == "" {
		return 0
	}
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(network.Backoff(attempt))
		}
		if size, ok := e.headOnce(url); ok {
			return size
		}
	}
	return 0
}

func (e *Manager) headOnce(url string) (int64, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), artifactHeadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, false
	}
	req.Header.Set("User-Agent", e.userAgentOrDefault())

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, false
	}
	return resp.ContentLength, true
}
