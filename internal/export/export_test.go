package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/i474232898/mesonet-data-aggregation/internal/normalize"
)

func f64(v float64) *float64 { return &v }
func str(v string) *string { return &v }
func boolp(v bool) *bool { return &v }

func sampleRows() []normalize.Row {
	t := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	station := normalize.Station{
		STID:      "KSLC",
		Name:      "Salt Lake City",
		Latitude:  f64(40.77),
		Longitude: f64(-111.97),
		Elevation: f64(1000),
		Timezone:  "America/Denver",
	}
	return []normalize.Row{
		{Station: station, DateTime: &t, Variable: "air_temp", SensorIndex: 1, Value: f64(21.5), Units: "Celsius", QCPassed: boolp(true)},
		{Station: station, DateTime: &t, Variable: "wind_speed", SensorIndex: 1, Value: f64(3), Units: "m/s", QCFlags: []int{3, 12}},
		{Station: station, DateTime: &t, Variable: "weather_condition", SensorIndex: 1, IsDerived: true, ValueString: str("clear")},
		{Station: station, DateTime: &t, Variable: "snow_depth", SensorIndex: 2, Units: "Millimeters"},
		{Station: normalize.Station{STID: "EMPTY"}},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleRows()); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(records) != 6 {
		t.Fatalf("expected header + 5 rows, got %d", len(records))
	}
	header := records[0]
	for _, h := range header {
		if h != strings.ToLower(h) {
			t.Errorf("header %q is not lower case", h)
		}
	}

	col := func(name string) int {
		for i, h := range header {
			if h == name {
				return i
			}
		}
		t.Fatalf("missing column %q", name)
		return -1
	}

	first := records[1]
	if first[col("date_time")] != "2023-11-14T22:13:20Z" {
		t.Errorf("date_time = %q", first[col("date_time")])
	}
	if first[col("value")] != "21.5" || first[col("qc_passed")] != "true" {
		t.Errorf("unexpected first row: %v", first)
	}
	if got := records[2][col("qc_flags")]; got != "3;12" {
		t.Errorf("qc_flags = %q, want 3;12", got)
	}
	if got := records[3][col("value_string")]; got != "clear" {
		t.Errorf("value_string = %q", got)
	}
	if got := records[3][col("is_derived")]; got != "true" {
		t.Errorf("is_derived = %q", got)
	}
	empty := records[5]
	if empty[col("stid")] != "EMPTY" || empty[col("variable")] != "" || empty[col("sensor_index")] != "" {
		t.Errorf("metadata-only row should have empty observation cells: %v", empty)
	}
	if first[col("network_name")] != "" || first[col("latency")] != "" {
		t.Errorf("unjoined rows should have empty join cells: %v", first)
	}
}

func TestWriteCSVJoinsAndLocalTime(t *testing.T) {
	rows := sampleRows()[:1]
	denver, err := time.LoadLocation("America/Denver")
	if err != nil {
		t.Skipf("zoneinfo unavailable: %v", err)
	}
	local := rows[0].DateTime.In(denver)
	latency := 90 * time.Second
	rows[0].DateTime = &local
	rows[0].NetworkName = "NWS/FAA"
	rows[0].Latency = &latency

	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	got := map[string]string{}
	for i, h := range records[0] {
		got[h] = records[1][i]
	}
	if got["date_time"] != "2023-11-14T15:13:20-07:00" {
		t.Errorf("date_time = %q", got["date_time"])
	}
	if got["network_name"] != "NWS/FAA" || got["latency"] != "1.5" {
		t.Errorf("join cells = %q %q", got["network_name"], got["latency"])
	}
}

func TestWriteWideCSV(t *testing.T) {
	wide := normalize.Pivot(sampleRows(), normalize.PivotOptions{})

	var buf bytes.Buffer
	if err := WriteWideCSV(&buf, wide); err != nil {
		t.Fatalf("WriteWideCSV: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(records) != 1+len(wide.Rows) {
		t.Fatalf("expected %d records, got %d", 1+len(wide.Rows), len(records))
	}
	if len(records[0]) != 5+len(wide.Columns) {
		t.Errorf("header has %d columns, want %d", len(records[0]), 5+len(wide.Columns))
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleRows()[:1]); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var out []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(out) != 1 || out[0]["stid"] != "KSLC" || out[0]["variable"] != "air_temp" {
		t.Errorf("unexpected json: %s", buf.String())
	}
}

func TestPointsSkipsRowsWithoutValues(t *testing.T) {
	points, err := Points(sampleRows(), "")
	if err != nil {
		t.Fatalf("Points: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}
	p := points[0]
	if p.Name() != DefaultMeasurement {
		t.Errorf("measurement = %q", p.Name())
	}
	tags := p.Tags()
	if tags["stid"] != "KSLC" || tags["variable"] != "air_temp" || tags["sensor_index"] != "1" || tags["is_derived"] != "false" {
		t.Errorf("unexpected tags: %v", tags)
	}
	fields, err := points[2].Fields()
	if err != nil {
		t.Fatalf("fields: %v", err)
	}
	if fields["value_string"] != "clear" {
		t.Errorf("unexpected fields: %v", fields)
	}
}

func TestWriteLineProtocol(t *testing.T) {
	bp, err := Batch(sampleRows()[:1], "weather", InfluxConfig{Database: "mesonet"})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteLineProtocol(&buf, bp); err != nil {
		t.Fatalf("WriteLineProtocol: %v", err)
	}
	line := strings.TrimSuffix(buf.String(), "\n")
	if !strings.HasPrefix(line, "weather,is_derived=false,sensor_index=1,stid=KSLC") {
		t.Errorf("unexpected line: %q", line)
	}
	if !strings.Contains(line, "value=21.5") {
		t.Errorf("missing value field: %q", line)
	}
	if !strings.HasSuffix(line, " 1700000000") {
		t.Errorf("expected second precision timestamp: %q", line)
	}
}

func TestUpload(t *testing.T) {
	var body, db string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/write":
			db = r.URL.Query().Get("db")
			b, _ := io.ReadAll(r.Body)
			body = string(b)
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := InfluxConfig{Addr: srv.URL, Database: "mesonet"}
	bp, err := Batch(sampleRows(), "", cfg)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if err := Upload(cfg, bp); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if db != "mesonet" {
		t.Errorf("db = %q", db)
	}
	if strings.Count(body, "\n")+1 < 3 || !strings.Contains(body, "variable=wind_speed") {
		t.Errorf("unexpected write body: %q", body)
	}
}

func TestUploadRequiresAddress(t *testing.T) {
	bp, err := Batch(nil, "", InfluxConfig{Database: "x"})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if err := Upload(InfluxConfig{}, bp); err == nil {
		t.Fatal("expected error without address")
	}
}

func TestWriteMET(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMET(&buf, sampleRows()); err != nil {
		t.Fatalf("WriteMET: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 numeric rows, got %d: %q", len(lines), buf.String())
	}

	want := "MESONET KSLC 20231114_221320 40.77 -111.97 304.8 TMP NA NA passed 21.5"
	if lines[0] != want {
		t.Errorf("line 0 = %q, want %q", lines[0], want)
	}
	cols := strings.Fields(lines[1])
	if len(cols) != 11 {
		t.Fatalf("expected 11 columns, got %d", len(cols))
	}
	if cols[6] != "WIND" || cols[9] != "flagged" {
		t.Errorf("unexpected columns: %v", cols)
	}
}
