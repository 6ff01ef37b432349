package ui

import (
	"strings"
	"testing"
)

func TestSimpleTable(t *testing.T) {
	table := NewSimpleTable("Versions", "Name", "Weight")
	table.AddRow("stable", "10")

	view := table.View(DefaultStyles())

	for _, want := range []string{"Versions", "Name", "Weight", "stable", "10"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestSimpleTableEmpty(t *testing.T) {
	table := NewSimpleTable("Proxies", "Prefix", "Target")
	table.Empty = "No reverse proxies."

	view := table.View(DefaultStyles())
	if !strings.Contains(view, "No reverse proxies.") {
		t.Errorf("expected empty message, got:\n%s", view)
	}
	if strings.Contains(view, "Prefix") {
		t.Errorf("headers should not render without rows:\n%s", view)
	}
}

func TestSimpleTableShortRow(t *testing.T) {
	table := NewSimpleTable("", "A", "B", "C").AlignRight(2)
	table.AddRow("only")
	table.AddRow("x", "y", "z", "dropped")

	if got := len(table.Rows[0]); got != 3 {
		t.Fatalf("row width = %d, want 3", got)
	}
	view := table.View(DefaultStyles())
	if strings.Contains(view, "dropped") {
		t.Errorf("extra cell rendered:\n%s", view)
	}
	if lines := strings.Count(view, "\n"); lines != 4 {
		t.Errorf("expected header, divider and two rows, got %d lines:\n%s", lines, view)
	}
}
