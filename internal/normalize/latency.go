package normalize

import (
	"time"

	"github.com/i474232898/mesonet-data-aggregation/internal/mesonet"
)

type latencyRecord struct {
	DateTime []string    `json:"date_time"`
	Values   []flexFloat `json:"values"`
}

// LatencyRow is the delay between an observation and its arrival at the
// API. Stations without latency data produce a single row with nil fields.
type LatencyRow struct {
	Station
	DateTime *time.Time     `json:"date_time"`
	Latency  *time.Duration `json:"latency"`
}

// LatencyTable is the normalized form of a latency response.
type LatencyTable struct {
	Stations []Station    `json:"stations"`
	Rows     []LatencyRow `json:"rows"`
	Warnings []string     `json:"warnings,omitempty"`
}

// Latency pairs each station's LATENCY timestamps with its values, which the
// API reports in minutes.
func (n *Normalizer) Latency(resp *mesonet.Response) (*LatencyTable, error) {
	if resp == nil {
		return nil, ErrNoResponse
	}
	w := &warnings{}

	t := &LatencyTable{}
	for _, rec := range decodeStations(resp.Station, w) {
		st := rec.station()
		t.Stations = append(t.Stations, st)

		if rec.Latency == nil || len(rec.Latency.DateTime) == 0 {
			t.Rows = append(t.Rows, LatencyRow{Station: st})
			continue
		}
		if len(rec.Latency.Values) != len(rec.Latency.DateTime) {
			w.addf("latency at station %s has %d values for %d timestamps",
				st.STID, len(rec.Latency.Values), len(rec.Latency.DateTime))
		}
		for i, stamp := range rec.Latency.DateTime {
			row := LatencyRow{Station: st}
			if ts, ok := parseTimestamp(stamp); ok {
				row.DateTime = &ts
			} else {
				w.addf("latency at station %s has unparseable timestamp %q", st.STID, stamp)
			}
			if i < len(rec.Latency.Values) && rec.Latency.Values[i].valid {
				d := time.Duration(rec.Latency.Values[i].v * float64(time.Minute))
				row.Latency = &d
			}
			t.Rows = append(t.Rows, row)
		}
	}

	t.Warnings = w.list
	for _, msg := range w.list {
		n.logger.Warn(msg, "service", string(mesonet.ServiceLatency))
	}
	return t, nil
}

// JoinLatency attaches latency to observation rows sharing the same station
// and timestamp. Rows without a match keep a nil Latency.
func JoinLatency(rows []Row, latency *LatencyTable) []Row {
	if latency == nil {
		return rows
	}
	type key struct {
		stid string
		at   int64
	}
	index := make(map[key]time.Duration, len(latency.Rows))
	for _, l := range latency.Rows {
		if l.DateTime == nil || l.Latency == nil {
			continue
		}
		index[key{l.STID, l.DateTime.UnixNano()}] = *l.Latency
	}

	out := make([]Row, len(rows))
	copy(out, rows)
	for i := range out {
		if out[i].DateTime == nil {
			continue
		}
		if d, ok := index[key{out[i].STID, out[i].DateTime.UnixNano()}]; ok {
			out[i].Latency = &d
		}
	}
	return out
}
