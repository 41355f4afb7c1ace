package export

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/i474232898/mesonet-data-aggregation/internal/normalize"
)

const (
	metMessageType = "MESONET"
	metMissing     = "NA"
	feetToMeters   = 0.3048
)

// gribNames maps Mesonet variable names to GRIB short names. Variables not
// listed keep their Mesonet name.
var gribNames = map[string]string{
	"air_temp":              "TMP",
	"relative_humidity":     "RH",
	"dew_point_temperature": "DPT",
	"wind_speed":            "WIND",
	"wind_direction":        "WDIR",
	"sea_level_pressure":    "PRMSL",
	"pressure":              "PRES",
}

// WriteMET writes numeric observations in the 11-column ASCII point format
// read by MET's ASCII2NC tool. Columns are space separated with no header;
// rows without a numeric value are skipped.
func WriteMET(w io.Writer, rows []normalize.Row) error {
	bw := bufio.NewWriter(w)
	for _, r := range rows {
		if r.Value == nil || r.DateTime == nil {
			continue
		}
		cols := []string{
			metMessageType,
			metField(r.STID),
			r.DateTime.UTC().Format("20060102_150405"),
			metFloat(r.Latitude),
			metFloat(r.Longitude),
			metElevation(r.Elevation),
			gribName(r.Variable),
			metMissing,
			metMissing,
			metQC(r),
			strconv.FormatFloat(*r.Value, 'f', -1, 64),
		}
		if _, err := bw.WriteString(strings.Join(cols, " ") + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func gribName(variable string) string {
	if name, ok := gribNames[variable]; ok {
		return name
	}
	return variable
}

func metQC(r normalize.Row) string {
	if (r.QCPassed != nil && !*r.QCPassed) || len(r.QCFlags) > 0 {
		return "flagged"
	}
	return "passed"
}

func metField(s string) string {
	if s == "" {
		return metMissing
	}
	return s
}

func metFloat(v *float64) string {
	if v == nil {
		return metMissing
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func metElevation(ft *float64) string {
	if ft == nil {
		return metMissing
	}
	m := *ft * feetToMeters
	return metFloat(&m)
}
