package weather

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/mesonet-data-aggregation/internal/normalize"
)

// SnapshotsFromTable splits a normalized table into one snapshot per
// station, in the order the stations appear in the table.
func SnapshotsFromTable(table *normalize.Table, fetchedAt time.Time) []Snapshot {
	if table == nil {
		return nil
	}
	fetchedAt = fetchedAt.UTC()

	index := make(map[string]int)
	var snapshots []Snapshot
	for _, r := range table.Rows {
		key := strings.ToUpper(r.STID)
		i, ok := index[key]
		if !ok {
			i = len(snapshots)
			index[key] = i
			snapshots = append(snapshots, Snapshot{
				ID:        uuid.New(),
				STID:      r.STID,
				FetchedAt: fetchedAt,
			})
		}

		snap := &snapshots[i]
		snap.Rows = append(snap.Rows, r)
		if r.DateTime != nil && r.DateTime.After(snap.ObservedAt) {
			snap.ObservedAt = r.DateTime.UTC()
		}
	}

	for i := range snapshots {
		if snapshots[i].ObservedAt.IsZero() {
			snapshots[i].ObservedAt = fetchedAt
		}
	}
	return snapshots
}
