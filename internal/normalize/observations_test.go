package normalize

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/i474232898/mesonet-data-aggregation/internal/mesonet"
)

func TestTimeSeriesTwoStationsFourTimestamps(t *testing.T) {
	table, err := quietNormalizer().TimeSeries(loadResponse(t, "timeseries.json", mesonet.ServiceTimeSeries))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(table.Rows) != 8 {
		t.Fatalf("expected 8 rows, got %d", len(table.Rows))
	}
	for _, r := range table.Rows {
		if r.Value == nil {
			t.Fatalf("row %+v has no numeric value", r)
		}
		if r.ValueString != nil {
			t.Fatalf("row %+v has a string value", r)
		}
		if r.Units != "Celsius" {
			t.Fatalf("expected Celsius, got %q", r.Units)
		}
		if r.QCPassed != nil || r.QCFlags != nil {
			t.Fatalf("expected no QC on %+v", r)
		}
		if r.Variable != "air_temp" || r.SensorIndex != 1 || r.IsDerived {
			t.Fatalf("unexpected key decomposition %+v", r)
		}
	}
	if len(table.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", table.Warnings)
	}

	stations := map[string]bool{}
	for _, st := range table.Stations {
		stations[st.STID] = true
	}
	for _, r := range table.Rows {
		if !stations[r.STID] {
			t.Fatalf("row station %s missing from metadata", r.STID)
		}
	}
	if len(stations) != 2 {
		t.Fatalf("expected 2 stations, got %v", stations)
	}

	wbb := rowsFor(table.Rows, "WBB", "air_temp")
	want := time.Date(2024, 1, 5, 2, 0, 0, 0, time.UTC)
	if !wbb[2].DateTime.Equal(want) || *wbb[2].Value != 0.8 {
		t.Fatalf("expected 0.8 at %v, got %v at %v", want, *wbb[2].Value, wbb[2].DateTime)
	}
}

func TestTimeSeriesMetadata(t *testing.T) {
	table, err := quietNormalizer().TimeSeries(loadResponse(t, "timeseries.json", mesonet.ServiceTimeSeries))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wbb, kearns := table.Stations[0], table.Stations[1]
	if wbb.ID != 1 || wbb.MNetID != 153 || kearns.ID != 2 || kearns.MNetID != 1 {
		t.Fatalf("ids not coerced: %+v %+v", wbb, kearns)
	}
	if wbb.Latitude == nil || *wbb.Latitude != 40.76623 || *wbb.Longitude != -111.84755 {
		t.Fatalf("coordinates not parsed: %v %v", wbb.Latitude, wbb.Longitude)
	}
	if wbb.IsActive == nil || !*wbb.IsActive {
		t.Fatalf("expected WBB active")
	}
	if kearns.IsActive == nil || *kearns.IsActive {
		t.Fatalf("expected Kearns inactive")
	}
	if wbb.IsRestricted == nil || *wbb.IsRestricted {
		t.Fatalf("expected restricted=false")
	}
	if kearns.IsRestricted != nil {
		t.Fatalf("expected restricted unknown")
	}
	if wbb.PeriodOfRecordStart == nil || !wbb.PeriodOfRecordStart.Equal(time.Date(1997, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected period of record start %v", wbb.PeriodOfRecordStart)
	}
	if kearns.PeriodOfRecordStart != nil || kearns.PeriodOfRecordEnd != nil {
		t.Fatalf("expected null period of record")
	}
}

func TestTimeSeriesShapes(t *testing.T) {
	table, err := quietNormalizer().TimeSeries(loadResponse(t, "timeseries_qc.json", mesonet.ServiceTimeSeries))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(table.Stations) != 2 {
		t.Fatalf("duplicate station records should collapse, got %d stations", len(table.Stations))
	}
	if table.Stations[0].Name != "Salt Lake City International Airport" {
		t.Fatalf("expected the first record to win, got %q", table.Stations[0].Name)
	}
	if table.Stations[0].IsActive != nil {
		t.Fatalf("unknown status should be null")
	}
	if len(table.Rows) != 13 {
		t.Fatalf("expected 13 rows, got %d", len(table.Rows))
	}

	temps := rowsFor(table.Rows, "KSLC", "air_temp")
	if len(temps) != 2 {
		t.Fatalf("null values should be dropped, got %d air_temp rows", len(temps))
	}
	if temps[0].QCFlags != nil {
		t.Fatalf("unchecked observation should have nil flags, got %v", temps[0].QCFlags)
	}
	if len(temps[1].QCFlags) != 2 || temps[1].QCFlags[0] != 3 || temps[1].QCFlags[1] != 12 {
		t.Fatalf("expected flags [3 12], got %v", temps[1].QCFlags)
	}

	rh := rowsFor(table.Rows, "KSLC", "relative_humidity")
	if len(rh) != 2 || !rh[0].IsDerived || len(rh[0].QCFlags) != 1 || rh[0].Units != "%" {
		t.Fatalf("unexpected relative humidity rows %+v", rh)
	}

	ozone := rowsFor(table.Rows, "KSLC", "ozone_concentration")
	if len(ozone) != 1 || ozone[0].Value == nil || *ozone[0].Value != 31.5 || ozone[0].ValueString != nil {
		t.Fatalf("ozone strings should become floats, got %+v", ozone)
	}

	clouds := rowsFor(table.Rows, "KSLC", "cloud_layer_1")
	if len(clouds) != 2 {
		t.Fatalf("expected 2 cloud layer rows, got %d", len(clouds))
	}
	if *clouds[0].Value != 1200 || *clouds[0].ValueString != "OVC" {
		t.Fatalf("unexpected cloud layer %+v", clouds[0])
	}
	if clouds[1].Value != nil || *clouds[1].ValueString != "CLR" {
		t.Fatalf("unexpected cloud layer %+v", clouds[1])
	}

	if got := rowsFor(table.Rows, "KSLC", "weather_cond_code"); len(got) != 0 {
		t.Fatalf("unknown shapes should be dropped, got %d rows", len(got))
	}
	joined := strings.Join(table.Warnings, "\n")
	if !strings.Contains(joined, "unknown shape for weather_cond_code_set_1: object") {
		t.Fatalf("missing shape warning: %v", table.Warnings)
	}
	if !strings.Contains(joined, "mystery_column") {
		t.Fatalf("missing unrecognized key warning: %v", table.Warnings)
	}

	empty := rowsFor(table.Rows, "EMPTY", "")
	if len(empty) != 1 || empty[0].HasObservation() || empty[0].DateTime != nil {
		t.Fatalf("expected one metadata-only row for EMPTY, got %+v", empty)
	}
	if len(table.Observations()) != 12 {
		t.Fatalf("expected 12 observations, got %d", len(table.Observations()))
	}

	if !table.CanDeriveWind("KSLC") || table.CanDeriveWind("EMPTY") {
		t.Fatalf("unexpected wind capability %v", table.Sensors)
	}
}

func TestValueColumnsAreExclusiveOutsideCloudLayers(t *testing.T) {
	for _, fixture := range []string{"timeseries_qc.json", "latest.json"} {
		service := mesonet.ServiceTimeSeries
		if fixture == "latest.json" {
			service = mesonet.ServiceLatest
		}
		table, err := quietNormalizer().Observations(loadResponse(t, fixture, service))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, r := range table.Observations() {
			if r.Value == nil && r.ValueString == nil {
				t.Fatalf("%s: row with no value %+v", fixture, r)
			}
			if strings.HasPrefix(r.Variable, "cloud_layer") {
				continue
			}
			if r.Value != nil && r.ValueString != nil {
				t.Fatalf("%s: row with both values %+v", fixture, r)
			}
		}
	}
}

func TestLatest(t *testing.T) {
	table, err := quietNormalizer().LatestNearest(loadResponse(t, "latest.json", mesonet.ServiceLatest))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st := table.Stations[0]
	if st.Latitude == nil || math.Abs(*st.Latitude-42.87) > 1e-9 {
		t.Fatalf("expected latitude 42.87, got %v", st.Latitude)
	}
	if st.Elevation == nil || *st.Elevation != 4806 {
		t.Fatalf("expected elevation 4806, got %v", st.Elevation)
	}
	if st.IsRestricted == nil || !*st.IsRestricted {
		t.Fatalf("expected restricted")
	}

	if len(table.Rows) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(table.Rows))
	}

	temps := rowsFor(table.Rows, "WBB", "air_temp")
	if len(temps) != 2 {
		t.Fatalf("expected two air_temp sensors, got %d", len(temps))
	}
	if temps[0].SensorIndex != 1 || temps[0].QCPassed == nil || *temps[0].QCPassed {
		t.Fatalf("expected sensor 1 failed QC, got %+v", temps[0])
	}
	if len(temps[0].QCFlags) != 2 {
		t.Fatalf("expected two flags, got %v", temps[0].QCFlags)
	}
	if temps[1].SensorIndex != 2 || temps[1].QCPassed == nil || !*temps[1].QCPassed || temps[1].QCFlags != nil {
		t.Fatalf("expected sensor 2 passed QC, got %+v", temps[1])
	}
	if temps[0].Units != "Celsius" {
		t.Fatalf("expected Celsius, got %q", temps[0].Units)
	}

	wind := rowsFor(table.Rows, "WBB", "wind_speed")
	want := time.Date(2024, 1, 5, 5, 50, 0, 0, time.UTC)
	if len(wind) != 1 || !wind[0].DateTime.Equal(want) || wind[0].QCPassed != nil {
		t.Fatalf("unexpected wind row %+v", wind)
	}

	cloud := rowsFor(table.Rows, "WBB", "cloud_layer_1")
	if len(cloud) != 1 || *cloud[0].Value != 2100 || *cloud[0].ValueString != "BKN" || !cloud[0].IsDerived {
		t.Fatalf("unexpected cloud row %+v", cloud)
	}
	if cloud[0].Units != "" {
		t.Fatalf("missing units should be empty, got %q", cloud[0].Units)
	}

	summary := rowsFor(table.Rows, "WBB", "weather_summary")
	if len(summary) != 1 || summary[0].Value != nil || *summary[0].ValueString != "Light Snow" {
		t.Fatalf("unexpected string row %+v", summary)
	}

	if len(table.Warnings) != 1 || !strings.Contains(table.Warnings[0], "unknown shape for odd_value_1: array") {
		t.Fatalf("expected one array shape warning, got %v", table.Warnings)
	}
}

func TestLocalTime(t *testing.T) {
	table, err := quietNormalizer().LatestNearest(loadResponse(t, "latest.json", mesonet.ServiceLatest))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	local, err := table.Rows[0].LocalTime()
	if err != nil {
		t.Skipf("time zone database unavailable: %v", err)
	}
	if local.Location().String() != "America/Denver" || !local.Equal(*table.Rows[0].DateTime) {
		t.Fatalf("unexpected local time %v", local)
	}
}

func TestObservationsRejectsOtherServices(t *testing.T) {
	n := quietNormalizer()
	if _, err := n.Observations(nil); !errors.Is(err, ErrNoResponse) {
		t.Fatalf("expected ErrNoResponse, got %v", err)
	}
	if _, err := n.Observations(&mesonet.Response{Service: mesonet.ServiceMetadata}); err == nil {
		t.Fatal("expected error for metadata response")
	}
}

func TestMalformedFieldsKeepTheStation(t *testing.T) {
	resp := decodeResponse(t, `{
		"SUMMARY": {"RESPONSE_CODE": 1},
		"UNITS": {"air_temp": "Celsius"},
		"STATION": [
			{"STID": "A", "OBSERVATIONS": []},
			{"STID": "B", "STATUS": 1, "OBSERVATIONS": {"date_time": ["2024-01-05T00:00:00Z"], "air_temp_set_1": [1.0]}},
			{"STID": "C", "STATUS": "ACTIVE", "OBSERVATIONS": {"date_time": ["2024-01-05T00:00:00Z"], "air_temp_set_1": [2.0]}},
			{"STID": "D", "PERIOD_OF_RECORD": [], "QC": "none", "SENSOR_VARIABLES": 5,
				"OBSERVATIONS": {"date_time": ["2024-01-05T00:00:00Z"], "air_temp_set_1": [3.0]}},
			"not a station"
		]
	}`, mesonet.ServiceTimeSeries)

	table, err := quietNormalizer().TimeSeries(resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var stids []string
	for _, st := range table.Stations {
		stids = append(stids, st.STID)
	}
	if got := strings.Join(stids, ","); got != "A,B,C,D" {
		t.Fatalf("stations = %q, want A,B,C,D", got)
	}

	if len(table.Rows) != 4 {
		t.Fatalf("expected 4 rows, got %d: %+v", len(table.Rows), table.Rows)
	}
	if table.Rows[0].STID != "A" || table.Rows[0].HasObservation() {
		t.Errorf("A should keep a metadata-only row, got %+v", table.Rows[0])
	}
	for i, stid := range []string{"B", "C", "D"} {
		r := table.Rows[i+1]
		if r.STID != stid || r.Value == nil || *r.Value != float64(i+1) || r.Units != "Celsius" {
			t.Errorf("unexpected row for %s: %+v", stid, r)
		}
	}
	if table.Stations[1].IsActive != nil {
		t.Errorf("numeric STATUS should give a null is_active")
	}
	if table.Stations[3].PeriodOfRecordStart != nil {
		t.Errorf("malformed PERIOD_OF_RECORD should be dropped")
	}

	warned := strings.Join(table.Warnings, "\n")
	for _, field := range []string{"OBSERVATIONS at station A", "PERIOD_OF_RECORD at station D", "QC at station D", "SENSOR_VARIABLES at station D", "station record 4 is not an object"} {
		if !strings.Contains(warned, field) {
			t.Errorf("expected a warning mentioning %q, got %v", field, table.Warnings)
		}
	}
}
