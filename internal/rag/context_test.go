package rag

import (
	"strings"
	"testing"

	"github.com/duvidaki/duvidaki/internal/store"
)

func TestBuildContext(t *testing.T) {
	results := []store.Result{
		{
			Document: "Deploys happen on Tuesdays.",
			Metadata: map[string]any{
				"source": "confluence",
				"title":  "Release process",
				"url":    "https://wiki.example.com/release",
			},
		},
		{
			Document: "Backups are retained for thirty days.",
			Metadata: map[string]any{
				"source":    "github",
				"file_path": "docs/backups.md",
			},
		},
		{
			Document: "Orphan chunk with no metadata.",
			Metadata: map[string]any{"url": "javascript:alert(1)"},
		},
	}

	got := BuildContext(results)

	// Nearest-first order is preserved.
	first := strings.Index(got, "[Source 1 - CONFLUENCE]")
	second := strings.Index(got, "[Source 2 - GITHUB]")
	third := strings.Index(got, "[Source 3 - UNKNOWN]")
	if first == -1 || second == -1 || third == -1 || !(first < second && second < third) {
		t.Fatalf("blocks missing or out of order:\n%s", got)
	}

	if !strings.Contains(got, "Title: Release process") {
		t.Error("title not rendered")
	}
	if !strings.Contains(got, "URL: https://wiki.example.com/release") {
		t.Error("url line not rendered")
	}
	// Title falls back to the file path, then to a placeholder.
	if !strings.Contains(got, "Title: docs/backups.md") {
		t.Error("file_path fallback not rendered")
	}
	if !strings.Contains(got, "Title: Document") {
		t.Error("placeholder title not rendered")
	}

	// The github block has no URL line.
	githubBlock := got[second:third]
	if strings.Contains(githubBlock, "URL:") {
		t.Errorf("unexpected URL line in block without url metadata:\n%s", githubBlock)
	}
	// A malformed URL is dropped, not echoed into the prompt.
	if strings.Contains(got, "javascript:") {
		t.Errorf("malformed url leaked into context:\n%s", got)
	}

	if strings.Count(got, "\n\n---\n\n") != 2 {
		t.Errorf("expected 2 separators between 3 blocks:\n%s", got)
	}
}

func TestBuildContext_Empty(t *testing.T) {
	if got := BuildContext(nil); got != "" {
		t.Errorf("BuildContext(nil) = %q, want empty", got)
	}
}
