// Package resume defines the value types shared by every stage of the entity
// pipeline: labels, provenance, spans, documents, tasks and entity buckets.
// No pipeline logic lives here, only plain data and invariant helpers.
package resume

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Label
// ---------------------------------------------------------------------------

// Label is the entity class a span is tagged with. The string values are the
// wire names used by annotation exports and by the trained model.
type Label string

const (
	LabelSkill          Label = "Skill"
	LabelWorkExperience Label = "Work_Experience"
	LabelEducation      Label = "Education"
	LabelLanguage       Label = "Language"
)

// Labels returns the four target labels in presentation order.
func Labels() []Label {
	return []Label{LabelSkill, LabelWorkExperience, LabelEducation, LabelLanguage}
}

// ParseLabel maps a wire name to a Label. Matching is exact; the second
// result is false for anything outside the target set.
func ParseLabel(s string) (Label, bool) {
	switch Label(s) {
	case LabelSkill, LabelWorkExperience, LabelEducation, LabelLanguage:
		return Label(s), true
	}
	return "", false
}

func (l Label) String() string { return string(l) }

// Valid reports whether l is one of the target labels.
func (l Label) Valid() bool {
	_, ok := ParseLabel(string(l))
	return ok
}

func (l *Label) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, ok := ParseLabel(s)
	if !ok {
		return fmt.Errorf("unknown label %q", s)
	}
	*l = parsed
	return nil
}

// ---------------------------------------------------------------------------
// Source
// ---------------------------------------------------------------------------

// Source records where a span came from.
type Source string

const (
	SourceGold       Source = "gold"
	SourcePrediction Source = "prediction"
	SourceRegex      Source = "regex"
)

// ParseSource maps a lower-case provenance name to a Source.
func ParseSource(s string) (Source, bool) {
	switch Source(s) {
	case SourceGold, SourcePrediction, SourceRegex:
		return Source(s), true
	}
	return "", false
}

func (s Source) String() string { return string(s) }
