// Package inspect reads identity evidence (digest, signer) from files on disk.
// It is the only I/O the rule engine performs, and it is optional.
package inspect

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ruleforge/ruleforge/internal/models"
)

// ErrUnsigned means the file carries no embedded signature.
var ErrUnsigned = errors.New("file is not signed")

// Digest of a file's content
type Digest struct {
	// Hex is upper-case SHA-256 without a 0x prefix.
	Hex  string
	Size int64
}

// Inspector looks up evidence the scanner did not supply.
type Inspector interface {
	Hash(path string) (Digest, error)
	Signer(path string) (string, error)
}

// FileInspector reads from the local file system.
type FileInspector struct{}

func NewFileInspector() *FileInspector {
	return &FileInspector{}
}

// Hash streams the file through SHA-256. Missing or unreadable files wrap
// models.ErrArtifactUnavailable.
func (f *FileInspector) Hash(path string) (Digest, error) {
	file, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("%w: %v", models.ErrArtifactUnavailable, err)
	}
	defer file.Close()

	return HashReader(file)
}

// Signer returns the subject of the certificate embedded in a PE file's
// Authenticode signature. The signature is not verified.
func (f *FileInspector) Signer(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrArtifactUnavailable, err)
	}
	defer file.Close()

	return authenticodeSubject(file)
}

// HashReader digests r.
func HashReader(r io.Reader) (Digest, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return Digest{}, fmt.Errorf("%w: %v", models.ErrArtifactUnavailable, err)
	}
	return Digest{
		Hex:  strings.ToUpper(fmt.Sprintf("%x", h.Sum(nil))),
		Size: n,
	}, nil
}
