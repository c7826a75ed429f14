// Package updater implements the auto-update pipeline: check a release
// manifest, fetch the bundle through the download engine, verify its
// checksum, and atomically replace the running binary.
package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Release describes one published build, as served by the manifest URL.
type Release struct {
	Version  string `json:"version"`
	Notes    string `json:"notes"`
	URL      string `json:"url"`
	SHA256   string `json:"sha256"`
	Filename string `json:"filename"`
}

// Checker queries a release manifest for the latest available version.
type Checker struct {
	manifestURL string
	client      *http.Client
}

func NewChecker(manifestURL string) *Checker {
	return &Checker{
		manifestURL: manifestURL,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

// Latest fetches the manifest and returns its release, or nil if that
// release's version equals currentVersion (a leading "v" ignored on
// both). Versions are compared for equality only, so a manifest version
// older than currentVersion is returned as well.
func (c *Checker) Latest(ctx context.Context, currentVersion string) (*Release, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.manifestURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "ruma-updater")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("update manifest returned %d", resp.StatusCode)
	}

	var rel Release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, err
	}

	current := strings.TrimPrefix(currentVersion, "v")
	remote := strings.TrimPrefix(rel.Version, "v")
	if current == remote {
		return nil, nil
	}
	return &rel, nil
}
