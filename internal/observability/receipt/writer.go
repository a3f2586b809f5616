package receipt

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Writer persists receipts.
type Writer interface {
	Write(r Receipt) error
	Close() error
}

// Mode write strategy
type Mode string

const (
	// ModeOverwrite keeps a single JSON object.
	ModeOverwrite Mode = "overwrite"
	// ModeAppend adds one JSON line per run.
	ModeAppend Mode = "append"
)

// ParseMode accepts "" as overwrite.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeOverwrite:
		return ModeOverwrite, nil
	case ModeAppend:
		return ModeAppend, nil
	}
	return "", fmt.Errorf("invalid receipt mode %q (use overwrite or append)", s)
}

type fileWriter struct {
	mu   sync.Mutex
	file *os.File
	mode Mode
}

func NewWriter(path string, mode Mode) (Writer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create receipt directory: %w", err)
		}
	}

	flag := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if mode == ModeAppend {
		flag = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open receipt file: %w", err)
	}
	return &fileWriter{file: f, mode: mode}, nil
}

func (w *fileWriter) Write(r Receipt) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var (
		data []byte
		err  error
	)
	if w.mode == ModeAppend {
		data, err = json.Marshal(r)
		data = append(data, '\n')
	} else {
		data, err = json.MarshalIndent(r, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal receipt: %w", err)
	}
	if _, err := w.file.Write(data); err != nil {
		return fmt.Errorf("failed to write receipt: %w", err)
	}
	return nil
}

func (w *fileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
