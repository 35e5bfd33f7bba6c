package resume

// Document pairs a raw extracted text with its normalized form and the name
// of the normalization mode that produced it. Span offsets are only
// meaningful against Normalized under that same mode.
type Document struct {
	Raw        string `json:"-"`
	Normalized string `json:"text"`
	Mode       string `json:"normalization_mode"`
}

// Len returns the code-point length of the normalized text.
func (d Document) Len() int { return RuneLen(d.Normalized) }

// Runes returns the normalized text as runes for offset slicing.
func (d Document) Runes() []rune { return []rune(d.Normalized) }
