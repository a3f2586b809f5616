package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/ruleforge/ruleforge/internal/artifact"
	"github.com/ruleforge/ruleforge/internal/models"
	"github.com/ruleforge/ruleforge/internal/policydoc"
)

// stdio is the path that means stdin or stdout.
const stdio = "-"

func openInput(path string, stdin io.Reader) (io.ReadCloser, error) {
	if path == stdio {
		return io.NopCloser(stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// readArtifacts decodes and normalizes an artifact file. Records that do not
// normalize are returned separately.
func readArtifacts(path string, stdin io.Reader) ([]models.Artifact, []artifact.RecordError, error) {
	r, err := openInput(path, stdin)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open artifacts: %w", err)
	}
	defer r.Close()

	records, err := artifact.DecodeRecords(r)
	if err != nil {
		return nil, nil, err
	}
	artifacts, bad := artifact.NormalizeAll(records)
	return artifacts, bad, nil
}

func readPolicy(path string) (*models.Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open policy: %w", err)
	}
	defer f.Close()

	p, err := policydoc.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// writePolicy renders p to path, or to out when path is stdio.
func writePolicy(path string, p *models.Policy, out io.Writer) error {
	data, err := policydoc.Marshal(p)
	if err != nil {
		return err
	}
	if path == stdio {
		_, err = out.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write policy: %w", err)
	}
	return nil
}
