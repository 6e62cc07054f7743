package passes

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Dataset is the externally consumed result of one pass-finding run:
// observer and parameter snapshots, generation metadata, and the passes in
// chronological order.
type Dataset struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Observer    Observer  `json:"observer"`
	Parameters  Params    `json:"parameters"`
	TotalPasses int       `json:"total_passes"`
	Passes      []Pass    `json:"passes"`
}

// BuildDataset sorts passes ascending by start time and wraps them with
// run metadata. The input slice is sorted in place.
func BuildDataset(observer Observer, params Params, passes []Pass) *Dataset {
	sort.Slice(passes, func(i, j int) bool {
		return passes[i].StartUTC.Before(passes[j].StartUTC)
	})

	return &Dataset{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Observer:    observer,
		Parameters:  params,
		TotalPasses: len(passes),
		Passes:      passes,
	}
}
