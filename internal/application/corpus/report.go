package corpus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PartitionReport is the persisted summary of one partition.
type PartitionReport struct {
	Stats    Stats  `json:"stats"`
	Location string `json:"location"`
}

// Report summarizes one corpus build for the report store.
type Report struct {
	ID          string                     `json:"id"`
	RunID       string                     `json:"run_id"`
	Mode        string                     `json:"normalization_mode"`
	LabelSource string                     `json:"label_source"`
	Partitions  map[string]PartitionReport `json:"partitions"`
	CreatedAt   time.Time                  `json:"created_at"`
}

// ReportStore persists build reports.
type ReportStore interface {
	SaveReport(ctx context.Context, r *Report) error
}

// NewReport summarizes c with the locations returned by Write.
func NewReport(c *Corpus, locations map[string]string) *Report {
	r := &Report{
		ID:          uuid.New().String(),
		RunID:       c.RunID,
		Mode:        c.Mode,
		LabelSource: c.Source,
		Partitions:  make(map[string]PartitionReport, len(c.Partitions)),
		CreatedAt:   c.CreatedAt,
	}
	for _, p := range c.Partitions {
		r.Partitions[p.Name] = PartitionReport{Stats: c.Stats[p.Name], Location: locations[p.Name]}
	}
	return r
}

// Total sums the stats of every partition.
func (r *Report) Total() Stats {
	var s Stats
	for _, p := range r.Partitions {
		s.Add(p.Stats)
	}
	return s
}
