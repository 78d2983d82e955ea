package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: WarnLevel, Format: HumanFormat, Output: &buf})

	logger.Debug("too quiet", nil)
	logger.Info("still too quiet", nil)
	logger.Warn("audible", nil)
	logger.Error("loud", nil)

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Errorf("below-threshold events were written: %q", out)
	}
	if !strings.Contains(out, "audible") || !strings.Contains(out, "loud") {
		t.Errorf("at-threshold events missing: %q", out)
	}
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: JSONFormat, Output: &buf})

	logger.Info("request served", Fields{"status": 200, "path": "/hello"})

	var entry struct {
		Level   string         `json:"level"`
		Message string         `json:"message"`
		Fields  map[string]any `json:"fields"`
	}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry.Level != "info" || entry.Message != "request served" {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Fields["path"] != "/hello" {
		t.Errorf("fields = %v", entry.Fields)
	}
}

func TestWithCarriesBaseFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: HumanFormat, Output: &buf})
	child := logger.With(Fields{"requestId": "abc123"})

	child.Info("hit", Fields{"status": 200})

	out := buf.String()
	if !strings.Contains(out, "requestId=abc123") {
		t.Errorf("base field missing: %q", out)
	}
	if !strings.Contains(out, "status=200") {
		t.Errorf("event field missing: %q", out)
	}
}

func TestHumanFieldsDeterministicOrder(t *testing.T) {
	var first, second bytes.Buffer
	New(Config{Output: &first}).Info("x", Fields{"b": 2, "a": 1, "c": 3})
	New(Config{Output: &second}).Info("x", Fields{"c": 3, "a": 1, "b": 2})

	trim := func(s string) string {
		// Strip the timestamp, which legitimately differs.
		if i := strings.Index(s, " "); i >= 0 {
			return s[i:]
		}
		return s
	}
	if trim(first.String()) != trim(second.String()) {
		t.Errorf("field order not deterministic:\n%q\n%q", first.String(), second.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"", InfoLevel, false},
		{"verbose", InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNopWritesNothing(t *testing.T) {
	// Must not panic and must stay silent.
	Nop().Error("nobody hears this", Fields{"k": "v"})
}
