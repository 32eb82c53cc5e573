package updater

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
)

// verifyChecksum checks that the downloaded file matches the checksum the
// manifest advertised.
func verifyChecksum(expected, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	actual := fmt.Sprintf("%x", h.Sum(nil))

	if actual != expected {
		return errors.Errorf("checksum validation failed: expected %s, got %s", expected, actual)
	}
	return nil
}
