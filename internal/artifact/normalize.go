// Package artifact canonicalizes, deduplicates and identifies scan artifacts.
package artifact

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ruleforge/ruleforge/internal/models"
)

// fieldAliases maps each canonical field to the record keys accepted for it,
// in priority order. Keys are compared case-insensitively.
var fieldAliases = []struct {
	field string
	keys  []string
}{
	{"path", []string{"path", "filepath", "fullpath", "fullname"}},
	{"name", []string{"name", "filename"}},
	{"publisher", []string{"publisher", "signer", "certificate", "publishername"}},
	{"hash", []string{"hash", "sha256", "filehash"}},
	{"version", []string{"version", "productversion", "fileversion"}},
	{"source", []string{"source", "collector", "hostname"}},
	{"size", []string{"size", "length", "filesize"}},
}

// RecordError a record that could not be normalized
type RecordError struct {
	Index int
	Err   error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e RecordError) Unwrap() error { return e.Err }

// Normalize turns one raw scan record into a canonical Artifact. Unknown keys
// are dropped; a missing or blank path is rejected.
func Normalize(raw map[string]any) (models.Artifact, error) {
	lowered := make(map[string]any, len(raw))
	for k, v := range raw {
		lowered[strings.ToLower(strings.TrimSpace(k))] = v
	}

	fields := make(map[string]any, len(fieldAliases))
	for _, alias := range fieldAliases {
		for _, key := range alias.keys {
			if v, ok := lowered[key]; ok && v != nil {
				fields[alias.field] = v
				break
			}
		}
	}

	path := strings.TrimSpace(stringValue(fields["path"]))
	if path == "" {
		return models.Artifact{}, fmt.Errorf("%w: artifact path is required", models.ErrInvalidInput)
	}

	a := models.Artifact{
		Path:    path,
		Name:    strings.TrimSpace(stringValue(fields["name"])),
		Hash:    models.NormalizeHash(stringValue(fields["hash"])),
		Version: strings.TrimSpace(stringValue(fields["version"])),
		Source:  strings.TrimSpace(stringValue(fields["source"])),
	}
	if a.Name == "" {
		a.Name = BaseName(path)
	}
	if pub := strings.TrimSpace(stringValue(fields["publisher"])); pub != "" {
		a.Publisher = &pub
	}
	if size, ok := intValue(fields["size"]); ok && size > 0 {
		a.Size = size
	}

	return a, nil
}

// NormalizeAll keeps every record that normalizes and reports the rest.
func NormalizeAll(records []map[string]any) ([]models.Artifact, []RecordError) {
	artifacts := make([]models.Artifact, 0, len(records))
	var errs []RecordError
	for i, rec := range records {
		a, err := Normalize(rec)
		if err != nil {
			errs = append(errs, RecordError{Index: i, Err: err})
			continue
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, errs
}

// DecodeRecords reads a JSON array of records or one JSON object per line.
func DecodeRecords(r io.Reader) ([]map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact records: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	if data[0] == '[' {
		var records []map[string]any
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&records); err != nil {
			return nil, fmt.Errorf("%w: failed to parse artifact array: %v", models.ErrInvalidInput, err)
		}
		return records, nil
	}

	var records []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var rec map[string]any
		dec := json.NewDecoder(bytes.NewReader(text))
		dec.UseNumber()
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", models.ErrInvalidInput, line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan artifact records: %w", err)
	}
	return records, nil
}

// BaseName returns the final segment of a Windows or POSIX path.
func BaseName(path string) string {
	trimmed := strings.TrimRight(path, `\/`)
	if i := strings.LastIndexAny(trimmed, `\/`); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case fmt.Stringer:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

func intValue(v any) (int64, bool) {
	switch val := v.(type) {
	case json.Number:
		n, err := val.Int64()
		return n, err == nil
	case float64:
		return int64(val), true
	case int:
		return int64(val), true
	case int64:
		return val, true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
