package weather

import (
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/mesonet-data-aggregation/internal/normalize"
)

// Snapshot is the set of normalized observations fetched for one station
// in one poll.
type Snapshot struct {
	ID         uuid.UUID       `json:"id"`
	STID       string          `json:"stid"`
	FetchedAt  time.Time       `json:"fetchedAt"`  // always UTC
	ObservedAt time.Time       `json:"observedAt"` // newest observation timestamp, UTC
	Rows       []normalize.Row `json:"rows"`
}

// Variables lists the distinct variables present in the snapshot.
func (s Snapshot) Variables() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range s.Rows {
		if !r.HasObservation() {
			continue
		}
		if _, ok := seen[r.Variable]; ok {
			continue
		}
		seen[r.Variable] = struct{}{}
		out = append(out, r.Variable)
	}
	return out
}
