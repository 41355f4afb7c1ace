package normalize

import (
	"encoding/json"
	"time"

	"github.com/i474232898/mesonet-data-aggregation/internal/mesonet"
)

// PrecipitationRow is one derived precipitation interval at a station.
// Stations without intervals produce a single row with nil fields.
type PrecipitationRow struct {
	Station
	Interval    *int64     `json:"interval"`
	AccumHours  *float64   `json:"accum_hours,omitempty"`
	Count       *int64     `json:"count"`
	Total       *float64   `json:"total"`
	FirstReport *time.Time `json:"first_report"`
	LastReport  *time.Time `json:"last_report"`
	ReportType  string     `json:"report_type"`
	Units       string     `json:"units"`
}

// PrecipitationTable is the normalized form of a precipitation response.
type PrecipitationTable struct {
	Stations []Station          `json:"stations"`
	Rows     []PrecipitationRow `json:"rows"`
	Warnings []string           `json:"warnings,omitempty"`
}

type precipitationRecord struct {
	Interval    flexInt    `json:"interval"`
	AccumHours  flexFloat  `json:"accum_hours"`
	Count       flexInt    `json:"count"`
	Total       flexFloat  `json:"total"`
	FirstReport flexTime   `json:"first_report"`
	LastReport  flexTime   `json:"last_report"`
	ReportType  flexString `json:"report_type"`
}

// Precipitation explodes each station's OBSERVATIONS.precipitation list into
// rows and attaches the response's precipitation unit.
func (n *Normalizer) Precipitation(resp *mesonet.Response) (*PrecipitationTable, error) {
	if resp == nil {
		return nil, ErrNoResponse
	}
	w := &warnings{}
	units := resp.Units["precipitation"]

	t := &PrecipitationTable{}
	for _, rec := range decodeStations(resp.Station, w) {
		st := rec.station()
		t.Stations = append(t.Stations, st)

		var intervals []precipitationRecord
		if raw, ok := rec.Observations["precipitation"]; ok {
			if err := json.Unmarshal(raw, &intervals); err != nil {
				w.addf("unknown shape for precipitation at station %s: not a list of intervals", st.STID)
			}
		}
		if len(intervals) == 0 {
			t.Rows = append(t.Rows, PrecipitationRow{Station: st})
			continue
		}
		for _, p := range intervals {
			t.Rows = append(t.Rows, PrecipitationRow{
				Station:     st,
				Interval:    p.Interval.ptr(),
				AccumHours:  p.AccumHours.ptr(),
				Count:       p.Count.ptr(),
				Total:       p.Total.ptr(),
				FirstReport: p.FirstReport.ptr(),
				LastReport:  p.LastReport.ptr(),
				ReportType:  string(p.ReportType),
				Units:       units,
			})
		}
	}

	t.Warnings = w.list
	for _, msg := range w.list {
		n.logger.Warn(msg, "service", string(mesonet.ServicePrecipitation))
	}
	return t, nil
}
