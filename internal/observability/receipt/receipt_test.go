package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ruleforge/ruleforge/internal/models"
	"github.com/ruleforge/ruleforge/internal/observability"
)

func readReceipt(t *testing.T, path string) Receipt {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read receipt: %v", err)
	}
	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, data)
	}
	return r
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeOverwrite, "overwrite": ModeOverwrite, "append": ModeAppend} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMode("rotate"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestWriterOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipt.json")

	for _, op := range []string{"op-1", "op-2"} {
		w, err := NewWriter(path, ModeOverwrite)
		if err != nil {
			t.Fatalf("NewWriter failed: %v", err)
		}
		if err := w.Write(Receipt{SchemaVersion: SchemaVersion, OpID: op, Command: "ruleforge generate", Result: Result{Status: "success"}}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}

	r := readReceipt(t, path)
	if r.OpID != "op-2" {
		t.Errorf("op_id = %q, want the last run", r.OpID)
	}
}

func TestWriterAppend_WritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipts.jsonl")
	w, err := NewWriter(path, ModeAppend)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	_ = w.Write(Receipt{OpID: "op-1", Command: "ruleforge generate", Result: Result{Status: "success"}})
	_ = w.Write(Receipt{OpID: "op-2", Command: "ruleforge health", Result: Result{Status: "fail", Error: "score below threshold"}})
	_ = w.Close()

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var second Receipt
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("line 2 is not valid JSON: %v", err)
	}
	if second.OpID != "op-2" || second.Result.Status != "fail" {
		t.Errorf("unexpected second receipt: %+v", second)
	}
}

func TestWriterCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "2026", "receipt.json")
	w, err := NewWriter(path, ModeOverwrite)
	if err != nil {
		t.Fatalf("NewWriter should create directories: %v", err)
	}
	defer w.Close()
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("directory was not created: %v", err)
	}
}

func TestSessionFinish_Generation(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "artifacts.json")
	if err := os.WriteFile(input, []byte(`[]`), 0o644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "receipt.json")
	w, _ := NewWriter(path, ModeOverwrite)

	ctx := WithWriter(observability.WithOpID(context.Background()), w)
	sess := Start(ctx, "ruleforge generate", []string{"--artifacts", input})
	sess.now = func() time.Time { return sess.start.Add(time.Second) }

	stats := models.GenerationStatistics{PublisherRules: 2, HashRules: 1, Duplicates: 3}
	if err := sess.Finish(nil, WithInput(input), WithInput(filepath.Join(dir, "missing.xml")), WithGeneration(6, stats)); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	_ = w.Close()

	r := readReceipt(t, path)
	if r.OpID == "" || r.OpID != observability.OpID(ctx) {
		t.Errorf("op_id = %q", r.OpID)
	}
	if r.Result.Status != "success" {
		t.Errorf("status = %q", r.Result.Status)
	}
	if len(r.Inputs) != 2 {
		t.Fatalf("inputs = %+v", r.Inputs)
	}
	// sha256 of "[]"
	if r.Inputs[0].SHA256 != "4f53cda18c2baa0c0354bb5f9a3ecbe5ed12ab4d8e11ba873c2f11161202b945" {
		t.Errorf("input sha256 = %q", r.Inputs[0].SHA256)
	}
	if r.Inputs[1].SHA256 != "" {
		t.Error("missing file should have no digest")
	}
	if r.Generation == nil || r.Generation.Artifacts != 6 || r.Generation.Duplicates != 3 {
		t.Errorf("generation = %+v", r.Generation)
	}
}

func TestSessionFinish_ErrorTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipt.json")
	w, _ := NewWriter(path, ModeOverwrite)
	ctx := WithWriter(context.Background(), w)

	sess := Start(ctx, "ruleforge merge", nil)
	if err := sess.Finish(errors.New(strings.Repeat("x", 5000))); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	_ = w.Close()

	r := readReceipt(t, path)
	if r.Result.Status != "fail" {
		t.Errorf("status = %q", r.Result.Status)
	}
	if len(r.Result.Error) != MaxErrorLength || !strings.HasSuffix(r.Result.Error, "...") {
		t.Errorf("error length = %d", len(r.Result.Error))
	}
}

func TestSessionFinish_NoWriter(t *testing.T) {
	if From(context.Background()) != nil {
		t.Fatal("expected nil writer")
	}
	if err := Start(context.Background(), "ruleforge version", nil).Finish(nil); err != nil {
		t.Errorf("Finish without writer = %v", err)
	}
}
