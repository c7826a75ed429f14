package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Pradhumn115/ruma-core/internal/download"
	"github.com/Pradhumn115/ruma-core/internal/updater"

	"github.com/spf13/cobra"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

var updateManifestURL string

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Check a release manifest and, if newer, download and apply it",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpdate()
	},
}

func init() {
	updateCmd.Flags().StringVar(&updateManifestURL, "manifest", "", "release manifest URL")
}

func runUpdate() error {
	if updateManifestURL == "" {
		return fmt.Errorf("--manifest is required")
	}

	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()

	checker := updater.NewChecker(updateManifestURL)
	rel, err := checker.Latest(ctx, version)
	if err != nil {
		return fmt.Errorf("checking for updates: %w", err)
	}
	if rel == nil {
		fmt.Printf("already up to date (%s)\n", version)
		return nil
	}
	fmt.Printf("new release available: %s\n%s\n", rel.Version, rel.Notes)

	engine := download.NewEngine(a.log, a.db)
	engine.Start()
	defer engine.Shutdown()

	destDir, err := os.MkdirTemp("", "rumad-update-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(destDir)

	fetcher := updater.NewFetcher(engine)
	bundlePath, err := fetcher.Download(ctx, *rel, destDir)
	if err != nil {
		return fmt.Errorf("downloading update: %w", err)
	}

	if err := updater.NewVerifier().Verify(bundlePath, *rel); err != nil {
		return fmt.Errorf("verifying update: %w", err)
	}

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating running executable: %w", err)
	}

	if err := updater.NewApplier().Apply(bundlePath, self); err != nil {
		return fmt.Errorf("applying update: %w", err)
	}

	fmt.Printf("updated to %s, restart rumad to pick it up\n", rel.Version)
	return nil
}
