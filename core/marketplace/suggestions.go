package marketplace

import (
	"context"
	"iter"
	"regexp"
	"strconv"
	"strings"
)

// SuggestionRequest is the task text sent to the suggester.
type SuggestionRequest struct {
	Title          string
	Description    string
	Category       string
	RequiredSkills []string
	Query          string
	Count          int
}

// Suggester produces best-effort suggestions for a task.
type Suggester interface {
	Suggest(ctx context.Context, req SuggestionRequest) (iter.Seq[string], error)
}

var numberedItem = regexp.MustCompile(`\d+\.\s+`)

// SplitNumbered splits "1. foo 2. bar" style answers into trimmed items.
func SplitNumbered(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, part := range numberedItem.Split(strings.TrimSpace(text), -1) {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if !yield(part) {
				return
			}
		}
	}
}

// Prompt renders the request the way the suggestion model expects it.
func (r SuggestionRequest) Prompt() string {
	var b strings.Builder
	b.WriteString("Task Title: " + r.Title + "\n")
	b.WriteString("Task Description: " + r.Description + "\n")
	if r.Category != "" {
		b.WriteString("Category: " + r.Category + "\n")
	}
	if len(r.RequiredSkills) > 0 {
		b.WriteString("Required Skills: " + strings.Join(r.RequiredSkills, ", ") + "\n")
	}
	if r.Query != "" {
		b.WriteString("\nUser Query: " + r.Query + "\n")
		return b.String()
	}
	n := r.Count
	if n <= 0 {
		n = 3
	}
	b.WriteString("\nPlease provide " + strconv.Itoa(n) + " helpful suggestions or recommendations for completing this task effectively.\n")
	return b.String()
}
