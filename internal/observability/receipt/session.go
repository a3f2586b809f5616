package receipt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"time"

	"github.com/ruleforge/ruleforge/internal/models"
	"github.com/ruleforge/ruleforge/internal/observability"
)

// MaxErrorLength caps the error text stored in a receipt.
const MaxErrorLength = 2048

// Session tracks one command run.
type Session struct {
	ctx     context.Context
	start   time.Time
	command string
	args    []string
	now     func() time.Time
}

func Start(ctx context.Context, cmd string, args []string) *Session {
	return &Session{
		ctx:     ctx,
		start:   time.Now(),
		command: cmd,
		args:    args,
		now:     time.Now,
	}
}

// Option fills a section of the receipt.
type Option func(*Receipt)

// WithInput records a file the command read. Missing files are recorded
// without a digest.
func WithInput(path string) Option {
	return func(r *Receipt) {
		if path == "" {
			return
		}
		r.Inputs = append(r.Inputs, fileRef(path))
	}
}

// WithOutput records the file the command wrote.
func WithOutput(path string) Option {
	return func(r *Receipt) {
		if path == "" {
			return
		}
		ref := fileRef(path)
		r.Output = &ref
	}
}

func WithGeneration(artifacts int, s models.GenerationStatistics) Option {
	return func(r *Receipt) {
		r.Generation = &GenerationSummary{
			Artifacts:      artifacts,
			PublisherRules: s.PublisherRules,
			HashRules:      s.HashRules,
			PathRules:      s.PathRules,
			Skipped:        s.Skipped,
			Duplicates:     s.Duplicates,
			Errors:         s.Errors,
		}
	}
}

func WithMerge(s MergeSummary) Option {
	return func(r *Receipt) {
		r.Merge = &s
	}
}

func WithHealth(checks string, report models.HealthReport) Option {
	return func(r *Receipt) {
		r.Health = &HealthSummary{
			Checks:   checks,
			Score:    report.Score,
			Status:   string(report.Status),
			Critical: report.Summary.Critical,
			Warning:  report.Summary.Warning,
			Info:     report.Summary.Info,
		}
	}
}

func WithDiff(d DiffSummary) Option {
	return func(r *Receipt) {
		r.Diff = &d
	}
}

// Finish writes the receipt. It is a no-op when no writer is in the context.
func (s *Session) Finish(err error, opts ...Option) error {
	w := From(s.ctx)
	if w == nil {
		return nil
	}

	args, redacted := RedactArgs(s.args)
	r := Receipt{
		SchemaVersion: SchemaVersion,
		OpID:          observability.OpID(s.ctx),
		TsStart:       s.start.UTC().Format(time.RFC3339Nano),
		TsEnd:         s.now().UTC().Format(time.RFC3339Nano),
		Command:       s.command,
		Args:          args,
		ArgsRedacted:  redacted,
		Result:        Result{Status: "success"},
	}
	if err != nil {
		r.Result = Result{Status: "fail", Error: truncateError(err.Error())}
	}
	for _, opt := range opts {
		opt(&r)
	}
	return w.Write(r)
}

func fileRef(path string) FileRef {
	ref := FileRef{Path: path}
	if sum, err := fileSHA256(path); err == nil {
		ref.SHA256 = sum
	}
	return ref
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func truncateError(s string) string {
	if len(s) <= MaxErrorLength {
		return s
	}
	return s[:MaxErrorLength-3] + "..."
}
