package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestOutputJSON(t *testing.T) {
	var buf bytes.Buffer
	err := Output(&buf, map[string]int{"frames": 790}, FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"frames": 790`) {
		t.Fatalf("output = %q", buf.String())
	}
}

func TestOutputYAMLDefault(t *testing.T) {
	var buf bytes.Buffer
	if err := Output(&buf, map[string]int{"frames": 790}, ""); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "frames: 790") {
		t.Fatalf("output = %q", buf.String())
	}
}

func TestOutputUnsupported(t *testing.T) {
	if err := Output(&bytes.Buffer{}, 1, "xml"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.00 KB"},
		{3 * 1024 * 1024, "3.00 MB"},
		{5 * 1024 * 1024 * 1024, "5.00 GB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{12.34, "12.3s"},
		{75, "1m15.0s"},
		{3720, "1h2m"},
	}
	for _, tt := range tests {
		if got := FormatSeconds(tt.in); got != tt.want {
			t.Errorf("FormatSeconds(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTableRender(t *testing.T) {
	tbl := Table{
		Headers: []string{"ROLE", "PATH"},
		Rows: [][]string{
			{"G", "logs/44k/G_1000.ckpt"},
			{"D", "logs/44k/D_1000.ckpt"},
		},
	}
	out := tbl.Render()
	if !strings.Contains(out, "G_1000.ckpt") || !strings.Contains(out, "ROLE") {
		t.Fatalf("render = %q", out)
	}
	if lines := strings.Count(out, "\n"); lines != 3 {
		t.Fatalf("got %d lines, want 3", lines)
	}
}

func TestBar(t *testing.T) {
	if got := Bar(10, 10, 20); got != strings.Repeat("█", 20) {
		t.Fatalf("full bar = %q", got)
	}
	if got := Bar(1, 1000, 20); got != "█" {
		t.Fatalf("tiny count must still render one cell, got %q", got)
	}
	if got := Bar(0, 10, 20); got != "" {
		t.Fatalf("zero count = %q", got)
	}
}
