package todo

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"

	"github.com/taskvault/backend/internal/models"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 2000

	DefaultPerPage = 20
	MaxPerPage     = 100
)

var textPolicy = bluemonday.StrictPolicy()

// CleanText strips markup, NFC-normalizes and trims s. The policy escapes
// entities on output; they are decoded again since todos are stored as
// plain text and encoded by whatever renders them.
func CleanText(s string) string {
	stripped := html.UnescapeString(textPolicy.Sanitize(s))
	return strings.TrimSpace(norm.NFC.String(stripped))
}

func validateTitle(title string, fields map[string]any) {
	n := utf8.RuneCountInString(title)
	switch {
	case n == 0:
		fields["title"] = "must not be empty"
	case n > MaxTitleLength:
		fields["title"] = "must be at most 200 characters"
	}
}

func validateDescription(desc *string, fields map[string]any) {
	if desc != nil && utf8.RuneCountInString(*desc) > MaxDescriptionLength {
		fields["description"] = "must be at most 2000 characters"
	}
}

func validateStatus(status models.TodoStatus, fields map[string]any) {
	if !status.Valid() {
		fields["status"] = "must be one of pending, in_progress, completed"
	}
}

func validatePriority(priority models.TodoPriority, fields map[string]any) {
	if !priority.Valid() {
		fields["priority"] = "must be one of low, medium, high"
	}
}

var sortFields = map[string]bool{
	"created_at": true,
	"due_date":   true,
	"priority":   true,
	"title":      true,
}

// cleanOptional cleans the text and maps an empty result to nil.
func cleanOptional(s *string) *string {
	if s == nil {
		return nil
	}
	c := CleanText(*s)
	if c == "" {
		return nil
	}
	return &c
}
