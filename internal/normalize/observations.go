package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/mesonet-data-aggregation/internal/mesonet"
)

// ErrNoResponse is returned when a nil response is handed to the normalizer.
var ErrNoResponse = errors.New("normalize: nil response")

// ozoneVariable is sometimes delivered as strings by the API.
const ozoneVariable = "ozone_concentration"

// Row is one observation in the long table. Station metadata is repeated on
// every row. Rows for stations without observations have an empty Variable
// and a nil DateTime.
type Row struct {
	Station
	DateTime    *time.Time     `json:"date_time"`
	Variable    string         `json:"variable"`
	SensorIndex uint32         `json:"sensor_index"`
	IsDerived   bool           `json:"is_derived"`
	Value       *float64       `json:"value"`
	ValueString *string        `json:"value_string"`
	Units       string         `json:"units"`
	QCPassed    *bool          `json:"qc_passed"`
	QCFlags     []int          `json:"qc_flags"`
	Latency     *time.Duration `json:"latency,omitempty"`
}

// HasObservation reports whether the row carries a measurement.
func (r Row) HasObservation() bool {
	return r.Variable != ""
}

// LocalTime converts the row timestamp to the station's own time zone. The
// UTC timestamp is returned when the zone is unknown.
func (r Row) LocalTime() (time.Time, error) {
	if r.DateTime == nil {
		return time.Time{}, fmt.Errorf("row for %s has no timestamp", r.STID)
	}
	if r.Timezone == "" {
		return *r.DateTime, nil
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return *r.DateTime, fmt.Errorf("station %s timezone %q: %w", r.STID, r.Timezone, err)
	}
	return r.DateTime.In(loc), nil
}

// Table is the normalized form of one observation response.
type Table struct {
	Service  mesonet.Service                `json:"service"`
	Stations []Station                      `json:"stations"`
	Rows     []Row                          `json:"rows"`
	Units    map[string]string              `json:"units"`
	Sensors  map[string]map[string][]uint32 `json:"-"`
	Warnings []string                       `json:"warnings,omitempty"`
}

// Observations returns the rows that carry a measurement.
func (t *Table) Observations() []Row {
	out := make([]Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		if r.HasObservation() {
			out = append(out, r)
		}
	}
	return out
}

// CanDeriveWind reports whether a station advertises both wind speed and
// wind direction sensors.
func (t *Table) CanDeriveWind(stid string) bool {
	s := t.Sensors[stid]
	return len(s["wind_speed"]) > 0 && len(s["wind_direction"]) > 0
}

// Normalizer flattens API responses. Warnings about dropped data are logged
// and also returned on the resulting table.
type Normalizer struct {
	logger *slog.Logger
}

// New returns a Normalizer logging through logger, or slog.Default when nil.
func New(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger}
}

// Observations dispatches to the time series or latest/nearest path based
// on the service that produced resp.
func (n *Normalizer) Observations(resp *mesonet.Response) (*Table, error) {
	if resp == nil {
		return nil, ErrNoResponse
	}
	switch resp.Service {
	case mesonet.ServiceLatest, mesonet.ServiceNearestTime:
		return n.LatestNearest(resp)
	case mesonet.ServiceTimeSeries:
		return n.TimeSeries(resp)
	default:
		return nil, fmt.Errorf("normalize: %s responses carry no observations", resp.Service)
	}
}

// TimeSeries flattens a response whose observations are arrays aligned with
// a parallel date_time array.
func (n *Normalizer) TimeSeries(resp *mesonet.Response) (*Table, error) {
	return n.flatten(resp, mesonet.ServiceTimeSeries, timeSeriesRows)
}

// LatestNearest flattens a response whose observations are single
// timestamped values.
func (n *Normalizer) LatestNearest(resp *mesonet.Response) (*Table, error) {
	if resp == nil {
		return nil, ErrNoResponse
	}
	service := resp.Service
	if service != mesonet.ServiceNearestTime {
		service = mesonet.ServiceLatest
	}
	return n.flatten(resp, service, latestRows)
}

type rowBuilder func(rec *stationRecord, st Station, w *warnings) []Row

func (n *Normalizer) flatten(resp *mesonet.Response, service mesonet.Service, build rowBuilder) (*Table, error) {
	if resp == nil {
		return nil, ErrNoResponse
	}
	w := &warnings{}
	units := resp.Units
	if units == nil {
		units = map[string]string{}
	}

	t := &Table{
		Service: service,
		Units:   units,
		Sensors: map[string]map[string][]uint32{},
	}
	for _, rec := range decodeStations(resp.Station, w) {
		st := rec.station()
		t.Stations = append(t.Stations, st)
		if s := rec.sensorIndices(); s != nil {
			t.Sensors[st.STID] = s
		}

		rows := build(rec, st, w)
		if len(rows) == 0 {
			t.Rows = append(t.Rows, Row{Station: st})
			continue
		}
		for i := range rows {
			rows[i].Units = units[rows[i].Variable]
		}
		t.Rows = append(t.Rows, rows...)
	}

	t.Warnings = w.list
	for _, msg := range w.list {
		n.logger.Warn(msg, "service", string(service))
	}
	return t, nil
}

// observationValue is the partitioned payload of one observation.
type observationValue struct {
	number *float64
	text   *string
}

func (v observationValue) empty() bool {
	return v.number == nil && v.text == nil
}

// partition classifies one raw observation payload. ok is false when the
// payload matches none of the known shapes.
func partition(variable string, raw json.RawMessage) (v observationValue, shape string, ok bool) {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return v, "invalid json", false
	}
	switch x := decoded.(type) {
	case nil:
		return v, "", true
	case float64:
		v.number = &x
		return v, "", true
	case string:
		if variable == ozoneVariable {
			return ozoneValue(x)
		}
		v.text = &x
		return v, "", true
	case map[string]any:
		if isCloudLayer(variable, x) {
			return cloudLayerValue(x), "", true
		}
		return v, "object", false
	case []any:
		return v, "array", false
	case bool:
		return v, "bool", false
	}
	return v, fmt.Sprintf("%T", decoded), false
}

func ozoneValue(s string) (observationValue, string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return observationValue{}, "", true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return observationValue{}, fmt.Sprintf("string %q", s), false
	}
	return observationValue{number: &f}, "", true
}

func isCloudLayer(variable string, obj map[string]any) bool {
	if !strings.HasPrefix(variable, "cloud_layer") {
		return false
	}
	_, sky := obj["sky_condition"]
	_, height := obj["height_agl"]
	return sky || height
}

func cloudLayerValue(obj map[string]any) observationValue {
	var v observationValue
	if h, ok := obj["height_agl"].(float64); ok {
		v.number = &h
	}
	if s, ok := obj["sky_condition"].(string); ok {
		v.text = &s
	}
	return v
}

// sortedKeys returns the observation keys in a stable order.
func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func timeSeriesRows(rec *stationRecord, st Station, w *warnings) []Row {
	if len(rec.Observations) == 0 {
		return nil
	}

	var stamps []string
	if raw, ok := rec.Observations["date_time"]; ok {
		if err := json.Unmarshal(raw, &stamps); err != nil {
			w.addf("unknown shape for %s date_time: %v", st.STID, err)
			return nil
		}
	}
	times := make([]*time.Time, len(stamps))
	for i, s := range stamps {
		if t, ok := parseTimestamp(s); ok {
			times[i] = &t
		} else {
			w.addf("station %s has unparseable timestamp %q", st.STID, s)
		}
	}

	var rows []Row
	for _, key := range sortedKeys(rec.Observations) {
		if key == "date_time" {
			continue
		}
		k, err := ParseSetKey(key)
		if err != nil {
			w.addf("%v at station %s", err, st.STID)
			continue
		}

		var values []json.RawMessage
		if err := json.Unmarshal(rec.Observations[key], &values); err != nil {
			w.addf("unknown shape for %s: not an array", key)
			continue
		}
		if len(values) > len(times) {
			w.addf("%s at station %s has %d values for %d timestamps", key, st.STID, len(values), len(times))
		}
		flags := qcFlagSeries(rec.QC[key], len(times), key, w)

		reported := false
		for i := range times {
			// Arrays shorter than date_time are padded with nulls.
			var raw json.RawMessage
			if i < len(values) {
				raw = values[i]
			}
			if len(raw) == 0 {
				continue
			}
			v, shape, ok := partition(k.Variable, raw)
			if !ok {
				if !reported {
					w.addf("unknown shape for %s: %s", key, shape)
					reported = true
				}
				continue
			}
			if v.empty() {
				continue
			}
			rows = append(rows, Row{
				Station:     st,
				DateTime:    times[i],
				Variable:    k.Variable,
				SensorIndex: k.SensorIndex,
				IsDerived:   k.IsDerived,
				Value:       v.number,
				ValueString: v.text,
				QCFlags:     flags[i],
			})
		}
	}
	return rows
}

// qcFlagSeries decodes a QC array parallel to date_time. Entries are null
// for unchecked observations or a list of flag codes.
func qcFlagSeries(raw json.RawMessage, n int, key string, w *warnings) [][]int {
	out := make([][]int, n)
	if len(raw) == 0 {
		return out
	}
	var series []json.RawMessage
	if err := json.Unmarshal(raw, &series); err != nil {
		w.addf("unknown shape for QC %s: not an array", key)
		return out
	}
	for i := 0; i < n && i < len(series); i++ {
		out[i] = decodeFlags(series[i])
	}
	return out
}

func decodeFlags(raw json.RawMessage) []int {
	var generic []any
	if err := json.Unmarshal(raw, &generic); err != nil || generic == nil {
		return nil
	}
	flags := make([]int, 0, len(generic))
	for _, f := range generic {
		switch x := f.(type) {
		case float64:
			flags = append(flags, int(x))
		case string:
			if i, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
				flags = append(flags, i)
			}
		}
	}
	return flags
}

// latestValue is the single-value shape of latest and nearest time responses.
type latestValue struct {
	DateTime string          `json:"date_time"`
	Value    json.RawMessage `json:"value"`
	QC       *struct {
		Status  string          `json:"status"`
		QCFlags json.RawMessage `json:"qc_flags"`
	} `json:"qc"`
}

func latestRows(rec *stationRecord, st Station, w *warnings) []Row {
	var rows []Row
	for _, key := range sortedKeys(rec.Observations) {
		k, err := ParseValueKey(key)
		if err != nil {
			w.addf("%v at station %s", err, st.STID)
			continue
		}

		var lv latestValue
		if err := json.Unmarshal(rec.Observations[key], &lv); err != nil {
			w.addf("unknown shape for %s: not an object", key)
			continue
		}
		if len(lv.Value) == 0 {
			continue
		}
		v, shape, ok := partition(k.Variable, lv.Value)
		if !ok {
			w.addf("unknown shape for %s: %s", key, shape)
			continue
		}
		if v.empty() {
			continue
		}

		row := Row{
			Station:     st,
			Variable:    k.Variable,
			SensorIndex: k.SensorIndex,
			IsDerived:   k.IsDerived,
			Value:       v.number,
			ValueString: v.text,
		}
		if t, ok := parseTimestamp(lv.DateTime); ok {
			row.DateTime = &t
		} else {
			w.addf("%s at station %s has unparseable timestamp %q", key, st.STID, lv.DateTime)
		}
		if lv.QC != nil {
			row.QCPassed = qcStatus(lv.QC.Status)
			row.QCFlags = decodeFlags(lv.QC.QCFlags)
		} else if raw, ok := rec.QC[key]; ok {
			row.QCFlags = decodeFlags(raw)
		}
		rows = append(rows, row)
	}
	return rows
}

func qcStatus(status string) *bool {
	var v bool
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "passed":
		v = true
	case "failed":
		v = false
	default:
		return nil
	}
	return &v
}
