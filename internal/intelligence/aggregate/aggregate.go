// Package aggregate groups resolved spans into per-label lists of distinct
// surface strings, the shape returned to inference clients.
package aggregate

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/turtacn/ResumeLens/pkg/types/resume"
)

// Group collects the trimmed surface string of every span under its label.
// Duplicates within a label are dropped case-insensitively, keeping the
// first-seen spelling and order. Spans outside the text, with an unknown
// label, or with a blank surface are skipped.
func Group(spans resume.SpanSet, text string) resume.EntityBucket {
	bucket := resume.NewEntityBucket()
	if len(spans) == 0 {
		return bucket
	}
	runes := []rune(text)
	fold := cases.Fold()
	seen := make(map[resume.Label]map[string]struct{}, 4)

	for _, s := range spans {
		if !s.Label.Valid() {
			continue
		}
		surface := strings.TrimSpace(s.Text(runes))
		if surface == "" {
			continue
		}
		key := fold.String(surface)
		keys := seen[s.Label]
		if keys == nil {
			keys = make(map[string]struct{})
			seen[s.Label] = keys
		}
		if _, dup := keys[key]; dup {
			continue
		}
		keys[key] = struct{}{}
		bucket[s.Label] = append(bucket[s.Label], surface)
	}
	return bucket
}

// Response is the entity payload returned for one text.
type Response struct {
	Entities resume.EntityBucket `json:"entities"`
}

// DocumentData is the body of a Document response.
type DocumentData struct {
	Text     string              `json:"text"`
	Entities resume.EntityBucket `json:"entities"`
}

// Document is the response for one parsed file.
type Document struct {
	Filename    string       `json:"filename"`
	LengthChars int          `json:"length_chars"`
	Data        DocumentData `json:"data"`
}

// NewDocument wraps a grouped result with its file name and normalized text.
func NewDocument(filename, text string, entities resume.EntityBucket) *Document {
	if entities == nil {
		entities = resume.NewEntityBucket()
	}
	return &Document{
		Filename:    filename,
		LengthChars: resume.RuneLen(text),
		Data:        DocumentData{Text: text, Entities: entities},
	}
}
