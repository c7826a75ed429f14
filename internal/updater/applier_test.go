package updater

import (
	"os"
	"path/filepath"
	"testing"
)

func TestApplier_ApplyReplacesTarget(t *testing.T) {
	dir := t.TempDir()
	bundlePath := filepath.Join(dir, "bundle")
	targetPath := filepath.Join(dir, "current")

	if err := os.WriteFile(bundlePath, []byte("new build"), 0o644); err != nil {
		t.Fatalf("writing bundle: %v", err)
	}
	if err := os.WriteFile(targetPath, []byte("old build"), 0o755); err != nil {
		t.Fatalf("writing target: %v", err)
	}

	a := NewApplier()
	if err := a.Apply(bundlePath, targetPath); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	content, err := os.ReadFile(targetPath)
	if err != nil {
		t.Fatalf("reading target: %v", err)
	}
	if string(content) != "new build" {
		t.Errorf("expected target to hold new build, got %q", content)
	}

	if _, err := os.Stat(targetPath + ".update"); !os.IsNotExist(err) {
		t.Errorf("expected staging file to be gone after rename")
	}
}

func TestVerifier_RejectsMissingChecksum(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bundle")
	os.WriteFile(path, []byte("data"), 0o644)

	v := NewVerifier()
	if err := v.Verify(path, Release{}); err == nil {
		t.Fatal("expected error for release with no checksum")
	}
}
