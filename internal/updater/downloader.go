package updater

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Pradhumn115/ruma-core/internal/download"
)

// Fetcher downloads a release bundle. A release is just another
// artifact, so it goes through the same resumable download engine used
// for model files rather than a one-off http.Get.
type Fetcher struct {
	engine *download.Manager
}

func NewFetcher(engine *download.Manager) *Fetcher {
	return &Fetcher{engine: engine}
}

// Download fetches rel.URL into destDir and returns the saved path once
// the engine reports the task complete.
func (f *Fetcher) Download(ctx context.Context, rel Release, destDir string) (string, error) {
	id, err := f.engine.StartDownload(rel.URL, destDir, rel.Filename, map[string]string{})
	if err != nil {
		return "", fmt.Errorf("starting update download: %w", err)
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.engine.StopDownload(id)
			return "", ctx.Err()
		case <-ticker.C:
			task, err := f.engine.GetTask(id)
			if err != nil {
				return "", err
			}
			switch task.Status {
			case "completed":
				return task.SavePath, nil
			case "error", "stopped":
				return "", fmt.Errorf("update download failed: %s", task.Status)
			}
		}
	}
}

// cleanup removes a partially-applied temp file, best-effort.
func cleanup(path string) {
	if path != "" {
		os.Remove(path)
	}
}
