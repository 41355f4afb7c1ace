package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// ErrUsage is returned when a derived view is requested on a table that
// lacks the columns it needs.
var ErrUsage = errors.New("normalize: usage error")

// DefaultSensorIndex is the primary sensor kept by Pivot when no index is
// requested.
const DefaultSensorIndex = 1

// PivotOptions selects which rows take part in a pivot.
type PivotOptions struct {
	SensorIndex uint32
}

// WideRow is one (timestamp, station) row of a pivoted table.
type WideRow struct {
	DateTime  time.Time
	STID      string
	Latitude  *float64
	Longitude *float64
	Elevation *float64
	Values    map[string]*float64
}

// MarshalJSON flattens the variable columns next to the index columns.
func (r WideRow) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Values)+5)
	for k, v := range r.Values {
		m[k] = v
	}
	m["date_time"] = r.DateTime
	m["stid"] = r.STID
	m["latitude"] = r.Latitude
	m["longitude"] = r.Longitude
	m["elevation"] = r.Elevation
	return json.Marshal(m)
}

// WideTable has one column per variable, in order of first appearance.
type WideTable struct {
	Columns []string  `json:"columns"`
	Rows    []WideRow `json:"rows"`
}

// HasColumn reports whether name is one of the variable columns.
func (t *WideTable) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Pivot reshapes observation rows for one sensor index into a wide table
// indexed by timestamp and station, ordered by station then time. Duplicate
// cells are averaged. String values and rows without a timestamp do not
// take part.
func Pivot(rows []Row, opts PivotOptions) *WideTable {
	sensor := opts.SensorIndex
	if sensor == 0 {
		sensor = DefaultSensorIndex
	}

	type index struct {
		at   int64
		stid string
	}
	type cell struct {
		sum   float64
		count int
	}

	t := &WideTable{}
	stationOrder := map[string]int{}
	positions := map[index]int{}
	cells := []map[string]*cell{}
	seenColumns := map[string]struct{}{}

	for _, r := range rows {
		if !r.HasObservation() || r.DateTime == nil || r.SensorIndex != sensor {
			continue
		}
		if _, ok := seenColumns[r.Variable]; !ok {
			seenColumns[r.Variable] = struct{}{}
			t.Columns = append(t.Columns, r.Variable)
		}

		if _, ok := stationOrder[r.STID]; !ok {
			stationOrder[r.STID] = len(stationOrder)
		}
		key := index{r.DateTime.UnixNano(), r.STID}
		pos, ok := positions[key]
		if !ok {
			pos = len(t.Rows)
			positions[key] = pos
			t.Rows = append(t.Rows, WideRow{
				DateTime:  *r.DateTime,
				STID:      r.STID,
				Latitude:  r.Latitude,
				Longitude: r.Longitude,
				Elevation: r.Elevation,
			})
			cells = append(cells, map[string]*cell{})
		}

		c := cells[pos][r.Variable]
		if c == nil {
			c = &cell{}
			cells[pos][r.Variable] = c
		}
		if r.Value != nil {
			c.sum += *r.Value
			c.count++
		}
	}

	for i := range t.Rows {
		values := make(map[string]*float64, len(t.Columns))
		for _, col := range t.Columns {
			values[col] = nil
			if c := cells[i][col]; c != nil && c.count > 0 {
				mean := c.sum / float64(c.count)
				values[col] = &mean
			}
		}
		t.Rows[i].Values = values
	}

	sort.SliceStable(t.Rows, func(i, j int) bool {
		a, b := t.Rows[i], t.Rows[j]
		if a.STID != b.STID {
			return stationOrder[a.STID] < stationOrder[b.STID]
		}
		return a.DateTime.Before(b.DateTime)
	})
	return t
}

// WithWindUV adds wind_u and wind_v columns computed from wind_speed and
// wind_direction with the meteorological convention. The table must already
// be pivoted with both source columns present.
func (t *WideTable) WithWindUV() error {
	if !t.HasColumn("wind_speed") || !t.HasColumn("wind_direction") {
		return fmt.Errorf("%w: wind vectors need wind_speed and wind_direction columns; pivot the observations first", ErrUsage)
	}
	for _, col := range []string{"wind_u", "wind_v"} {
		if !t.HasColumn(col) {
			t.Columns = append(t.Columns, col)
		}
	}
	for i := range t.Rows {
		speed, dir := t.Rows[i].Values["wind_speed"], t.Rows[i].Values["wind_direction"]
		if speed == nil || dir == nil {
			t.Rows[i].Values["wind_u"] = nil
			t.Rows[i].Values["wind_v"] = nil
			continue
		}
		u, v := WindComponents(*speed, *dir)
		t.Rows[i].Values["wind_u"] = &u
		t.Rows[i].Values["wind_v"] = &v
	}
	return nil
}

// WindComponents returns the u and v components of a wind blowing from
// direction degrees at speed.
func WindComponents(speed, direction float64) (u, v float64) {
	rad := direction * math.Pi / 180
	return -speed * math.Sin(rad), -speed * math.Cos(rad)
}
