package logging

import (
	"context"
	"encoding/json"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/ruleforge/ruleforge/internal/observability"
	"github.com/ruleforge/ruleforge/internal/version"
)

const SchemaVersion = "1.0"

// EventPrefix namespaces events for log pipelines.
const EventPrefix = "ruleforge."

type jsonlLogger struct {
	writer   io.Writer
	closer   io.Closer
	minLevel int
	now      func() time.Time
	mu       sync.Mutex
}

func newJSONLLogger(w io.Writer, closer io.Closer, level string) *jsonlLogger {
	return &jsonlLogger{
		writer:   w,
		closer:   closer,
		minLevel: levelPriority(level),
		now:      time.Now,
	}
}

type logEntry struct {
	Timestamp        string         `json:"ts"`
	Level            string         `json:"level"`
	Event            string         `json:"event,omitempty"`
	Component        string         `json:"component"`
	OpID             string         `json:"op_id"`
	SchemaVersion    string         `json:"schema_version"`
	RuleforgeVersion string         `json:"ruleforge_version,omitempty"`
	GoVersion        string         `json:"go_version,omitempty"`
	Message          string         `json:"msg,omitempty"`
	Fields           map[string]any `json:"fields,omitempty"`
}

func (j *jsonlLogger) entry(level, component string) logEntry {
	now := time.Now
	if j.now != nil {
		now = j.now
	}
	return logEntry{
		Timestamp:        now().Format(time.RFC3339Nano),
		Level:            level,
		Component:        component,
		SchemaVersion:    SchemaVersion,
		RuleforgeVersion: version.BuildVersion(),
		GoVersion:        runtime.Version(),
	}
}

func (j *jsonlLogger) log(level, component, msg string, fields ...any) {
	if levelPriority(level) < j.minLevel {
		return
	}

	e := j.entry(level, component)
	e.Message = msg
	e.Fields = pairsToMap(fields)
	j.writeEntry(e)
}

// Event records a named milestone; it bypasses level filtering.
func (j *jsonlLogger) Event(ctx context.Context, event string, fields map[string]any) {
	e := j.entry(LevelInfo, "cli")
	e.Event = EventPrefix + event
	e.OpID = observability.OpID(ctx)
	e.Fields = fields
	j.writeEntry(e)
}

// pairsToMap turns key, value, key, value... into a map; a dangling key or a
// non-string key is dropped.
func pairsToMap(fields []any) map[string]any {
	if len(fields) < 2 {
		return nil
	}
	m := make(map[string]any, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		if key, ok := fields[i].(string); ok {
			m[key] = fields[i+1]
		}
	}
	return m
}

func (j *jsonlLogger) writeEntry(entry logEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	_, _ = j.writer.Write(data)
}

func (j *jsonlLogger) Debug(component, msg string, fields ...any) {
	j.log(LevelDebug, component, msg, fields...)
}

func (j *jsonlLogger) Info(component, msg string, fields ...any) {
	j.log(LevelInfo, component, msg, fields...)
}

func (j *jsonlLogger) Warn(component, msg string, fields ...any) {
	j.log(LevelWarn, component, msg, fields...)
}

func (j *jsonlLogger) Error(component, msg string, fields ...any) {
	j.log(LevelError, component, msg, fields...)
}

func (j *jsonlLogger) Close() error {
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}
