package resume

// Task is one record of an annotation export: a text plus the candidate spans
// attached to it by humans (annotations) or by a pre-labelling model
// (predictions). Tasks are created by ingestion and read once by corpus
// construction.
type Task struct {
	// ID is the export's own task id when present, otherwise the zero-based
	// record index formatted as a string.
	ID          string                 `json:"id"`
	Text        string                 `json:"text"`
	Annotations SpanSet                `json:"annotations,omitempty"`
	Predictions SpanSet                `json:"predictions,omitempty"`
	Meta        map[string]interface{} `json:"meta,omitempty"`
}

// Candidates returns the predictions when usePredictions is set, otherwise
// the annotations.
func (t Task) Candidates(usePredictions bool) SpanSet {
	if usePredictions {
		return t.Predictions
	}
	return t.Annotations
}
