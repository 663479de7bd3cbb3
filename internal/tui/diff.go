package tui

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// lineChanges counts added and removed lines between two versions of a
// snippet's content, diffing whole lines rather than characters.
func lineChanges(before, after string) (added, removed int) {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			removed += countLines(d.Text)
		}
	}
	return added, removed
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}

// editSummary describes an update for the status bar.
func editSummary(oldName, newName, oldContent, newContent string) string {
	var parts []string
	if oldName != newName {
		parts = append(parts, fmt.Sprintf("renamed to %s", newName))
	}
	if oldContent != newContent {
		added, removed := lineChanges(oldContent, newContent)
		parts = append(parts, fmt.Sprintf("+%d -%d lines", added, removed))
	}
	if len(parts) == 0 {
		return "Updated"
	}
	return "Updated: " + strings.Join(parts, ", ")
}
