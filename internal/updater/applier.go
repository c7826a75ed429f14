package updater

import (
	"fmt"
	"os"

	"github.com/Pradhumn115/ruma-core/internal/integrity"
)

// Verifier checks a downloaded bundle against the manifest's checksum.
type Verifier struct {
	fv *integrity.FileVerifier
}

func NewVerifier() *Verifier {
	return &Verifier{fv: integrity.NewFileVerifier()}
}

func (v *Verifier) Verify(path string, rel Release) error {
	if rel.SHA256 == "" {
		return fmt.Errorf("release manifest has no checksum, refusing to apply")
	}
	return v.fv.Verify(path, "sha256", rel.SHA256)
}

// Applier swaps the verified bundle in for the currently running
// executable. OS-specific elevation or service-restart steps are out of
// scope; this only performs the file-level atomic replace.
type Applier struct{}

func NewApplier() *Applier {
	return &Applier{}
}

// Apply replaces the executable at targetPath with the verified bundle
// at bundlePath. It stages the swap through a sibling temp file so a
// crash mid-replace never leaves targetPath missing or half-written.
func (a *Applier) Apply(bundlePath, targetPath string) error {
	tmpPath := targetPath + ".update"

	if err := copyFile(bundlePath, tmpPath); err != nil {
		cleanup(tmpPath)
		return fmt.Errorf("staging update: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o755); err != nil {
		cleanup(tmpPath)
		return fmt.Errorf("setting update permissions: %w", err)
	}
	if err := os.Rename(tmpPath, targetPath); err != nil {
		cleanup(tmpPath)
		return fmt.Errorf("swapping in update: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := out.ReadFrom(in); err != nil {
		return err
	}
	return out.Sync()
}
