package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
)

type summary struct {
	Scope   string `json:"scope" yaml:"scope"`
	Deleted int    `json:"deleted" yaml:"deleted"`
}

func (s summary) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s deleted=%d\n", s.Scope, s.Deleted)
	return err
}

// TestFormatters tests each output format.
func TestFormatters(t *testing.T) {
	data := summary{Scope: "t1", Deleted: 3}

	tests := []struct {
		format OutputFormat
		want   string
	}{
		{FormatText, "t1 deleted=3\n"},
		{FormatJSON, "{\n  \"scope\": \"t1\",\n  \"deleted\": 3\n}\n"},
		{FormatYAML, "scope: t1\ndeleted: 3\n"},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			if err := NewFormatter(tt.format).FormatTo(&buf, data); err != nil {
				t.Fatalf("FormatTo() failed: %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("FormatTo() = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestTextFormatter_Fallback(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TextFormatter{}).FormatTo(&buf, 42); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "42\n" {
		t.Errorf("FormatTo() = %q", buf.String())
	}
}

func TestJSONFormatter_Compact(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONFormatter{}).FormatTo(&buf, map[string]int{"a": 1}); err != nil {
		t.Fatal(err)
	}
	if strings.Count(buf.String(), "\n") != 1 {
		t.Errorf("compact JSON spans lines: %q", buf.String())
	}
	var decoded map[string]int
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil || decoded["a"] != 1 {
		t.Errorf("decoded = %v, err = %v", decoded, err)
	}
}

func TestParseOutputFormat(t *testing.T) {
	for _, ok := range []string{"text", "json", "yaml"} {
		if _, err := ParseOutputFormat(ok); err != nil {
			t.Errorf("ParseOutputFormat(%q) = %v", ok, err)
		}
	}
	if _, err := ParseOutputFormat("xml"); ExitCode(err) != ExitConfig {
		t.Errorf("ParseOutputFormat(xml) = %v, want ConfigError", err)
	}
}
