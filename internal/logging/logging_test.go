package logging_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/raysh454/browserfetch/internal/logging"
)

func TestStdoutLogger_WritesJSONLine(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := logging.NewWriterLogger("bridge", &buf)

	l.Info("fetch complete", logging.F("status", 200))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["level"] != "info" || entry["msg"] != "fetch complete" || entry["component"] != "bridge" {
		t.Errorf("unexpected entry: %v", entry)
	}
	fields, _ := entry["fields"].(map[string]any)
	if fields["status"] != float64(200) {
		t.Errorf("expected status field 200, got %v", fields["status"])
	}
}

func TestStdoutLogger_WithCarriesFieldsAndComponent(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := logging.NewWriterLogger("root", &buf).
		With(logging.F("component", "session"), logging.F("session_id", "abc"))

	l.Warn("slow script")

	out := buf.String()
	if !strings.Contains(out, `"component":"session"`) {
		t.Errorf("expected component override, got %s", out)
	}
	if !strings.Contains(out, `"session_id":"abc"`) {
		t.Errorf("expected persistent field, got %s", out)
	}
}

func TestLogrusLogger_LevelFilter(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l, err := logging.NewLogrusLogger(&buf, "warn", "json")
	if err != nil {
		t.Fatalf("NewLogrusLogger: %v", err)
	}

	l.Info("hidden")
	l.With(logging.F("url", "https://example.com")).Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "example.com") {
		t.Errorf("expected warn line with url field, got %s", out)
	}
}

func TestLogrusLogger_RejectsUnknownFormat(t *testing.T) {
	t.Parallel()
	if _, err := logging.NewLogrusLogger(&bytes.Buffer{}, "info", "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if _, err := logging.NewLogrusLogger(&bytes.Buffer{}, "loud", "text"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestOrNop(t *testing.T) {
	t.Parallel()
	l := logging.OrNop(nil)
	l.With(logging.Err(nil)).Error("discarded")
}
