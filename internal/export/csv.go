package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/mesonet-data-aggregation/internal/normalize"
)

var csvHeader = []string{
	"date_time", "stid", "id", "mnet_id", "name", "latitude", "longitude", "elevation", "elev_dem",
	"state", "country", "timezone", "is_active", "is_restricted", "period_of_record_start",
	"period_of_record_end", "variable", "sensor_index", "is_derived", "value", "value_string",
	"units", "qc_passed", "qc_flags", "network_name", "latency",
}

// WriteCSV writes the long table with one header row. Null cells are empty.
// Times keep their zone and latency is written in minutes.
func WriteCSV(w io.Writer, rows []normalize.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			formatTime(r.DateTime), r.STID, formatUint(r.ID), formatUint(r.MNetID), r.Name,
			formatFloat(r.Latitude), formatFloat(r.Longitude), formatFloat(r.Elevation), formatFloat(r.ElevDEM),
			r.State, r.Country, r.Timezone, formatBool(r.IsActive), formatBool(r.IsRestricted),
			formatTime(r.PeriodOfRecordStart), formatTime(r.PeriodOfRecordEnd),
			r.Variable, "", "", formatFloat(r.Value), formatString(r.ValueString),
			r.Units, formatBool(r.QCPassed), formatFlags(r.QCFlags),
			r.NetworkName, formatMinutes(r.Latency),
		}
		if r.HasObservation() {
			rec[17] = formatUint(r.SensorIndex)
			rec[18] = strconv.FormatBool(r.IsDerived)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteWideCSV writes a pivoted table: index columns then one column per variable.
func WriteWideCSV(w io.Writer, t *normalize.WideTable) error {
	cw := csv.NewWriter(w)
	header := append([]string{"date_time", "stid", "latitude", "longitude", "elevation"}, t.Columns...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range t.Rows {
		rec := []string{
			r.DateTime.Format(time.RFC3339), r.STID,
			formatFloat(r.Latitude), formatFloat(r.Longitude), formatFloat(r.Elevation),
		}
		for _, col := range t.Columns {
			rec = append(rec, formatFloat(r.Values[col]))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func formatMinutes(d *time.Duration) string {
	if d == nil {
		return ""
	}
	return strconv.FormatFloat(d.Minutes(), 'f', -1, 64)
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatUint(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}

func formatBool(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}

func formatString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func formatFlags(flags []int) string {
	if flags == nil {
		return ""
	}
	parts := make([]string, len(flags))
	for i, f := range flags {
		parts[i] = strconv.Itoa(f)
	}
	return strings.Join(parts, ";")
}
