package resume

import (
	"bytes"
	"encoding/json"
)

// EntityBucket maps each target label to its distinct surface strings in
// first-seen order.
type EntityBucket map[Label][]string

// NewEntityBucket returns a bucket with an empty list for every label.
func NewEntityBucket() EntityBucket {
	b := make(EntityBucket, 4)
	for _, l := range Labels() {
		b[l] = []string{}
	}
	return b
}

// MarshalJSON always writes the four labels, in presentation order, each as
// an array.
func (b EntityBucket) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, l := range Labels() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(string(l))
		buf.Write(key)
		buf.WriteByte(':')
		vals := b[l]
		if vals == nil {
			vals = []string{}
		}
		enc, err := json.Marshal(vals)
		if err != nil {
			return nil, err
		}
		buf.Write(enc)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Total returns the number of surface strings across all labels.
func (b EntityBucket) Total() int {
	n := 0
	for _, v := range b {
		n += len(v)
	}
	return n
}
