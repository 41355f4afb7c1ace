package weather

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/i474232898/mesonet-data-aggregation/internal/mesonet"
	"github.com/i474232898/mesonet-data-aggregation/internal/normalize"
)

const latestBody = `{
	"SUMMARY": {"RESPONSE_CODE": 1, "RESPONSE_MESSAGE": "OK"},
	"UNITS": {"air_temp": "Celsius", "wind_speed": "m/s"},
	"STATION": [
		{"STID": "WBB", "LATITUDE": "40.76", "LONGITUDE": "-111.84",
			"OBSERVATIONS": {
				"air_temp_value_1": {"date_time": "2024-01-05T06:00:00Z", "value": -1.5},
				"wind_speed_value_1": {"date_time": "2024-01-05T05:50:00Z", "value": 3.1}
			}},
		{"STID": "KSLC", "LATITUDE": "40.77", "LONGITUDE": "-111.97",
			"OBSERVATIONS": {"air_temp_value_1": {"date_time": "2024-01-05T05:54:00Z", "value": 0.6}}},
		{"STID": "QUIET"}
	]
}`

const timeseriesBody = `{
	"SUMMARY": {"RESPONSE_CODE": 1, "RESPONSE_MESSAGE": "OK"},
	"UNITS": {"air_temp": "Celsius"},
	"STATION": [{"STID": "WBB",
		"OBSERVATIONS": {
			"date_time": ["2024-01-05T00:00:00Z", "2024-01-05T01:00:00Z"],
			"air_temp_set_1": [1.0, 2.0]
		}}]
}`

type call struct {
	service mesonet.Service
	params  mesonet.Params
}

type fakeProvider struct {
	bodies map[mesonet.Service]string
	err    error
	calls  []call
}

func (f *fakeProvider) Get(_ context.Context, service mesonet.Service, params mesonet.Params) (*mesonet.Response, error) {
	f.calls = append(f.calls, call{service, params})
	if f.err != nil {
		return nil, f.err
	}
	var resp mesonet.Response
	if err := json.Unmarshal([]byte(f.bodies[service]), &resp); err != nil {
		return nil, err
	}
	resp.Service = service
	return &resp, nil
}

type fakeStore struct {
	saved []Snapshot
	err   error
}

func (s *fakeStore) SaveSnapshot(snap Snapshot) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, snap)
	return nil
}

func (s *fakeStore) GetLatest(stid string) (Snapshot, error) {
	for i := len(s.saved) - 1; i >= 0; i-- {
		if s.saved[i].STID == stid {
			return s.saved[i], nil
		}
	}
	return Snapshot{}, errors.New("not found")
}

func (s *fakeStore) GetRange(stid string, from, to time.Time) ([]Snapshot, error) {
	return s.saved, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetchAndStore(t *testing.T) {
	provider := &fakeProvider{bodies: map[mesonet.Service]string{mesonet.ServiceLatest: latestBody}}
	st := &fakeStore{}
	svc := NewService(st, provider, quietLogger())
	fetched := time.Date(2024, 1, 5, 6, 5, 0, 0, time.UTC)
	svc.now = func() time.Time { return fetched }

	if err := svc.FetchAndStore(context.Background(), []string{"WBB", "KSLC", "QUIET"}, []string{"air_temp"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(provider.calls) != 1 {
		t.Fatalf("expected a single request, got %d", len(provider.calls))
	}
	c := provider.calls[0]
	if c.service != mesonet.ServiceLatest || c.params["within"] != DefaultWithin {
		t.Errorf("unexpected call: %+v", c)
	}

	if len(st.saved) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(st.saved))
	}
	wbb := st.saved[0]
	if wbb.STID != "WBB" || len(wbb.Rows) != 2 {
		t.Errorf("unexpected WBB snapshot: %+v", wbb)
	}
	if want := time.Date(2024, 1, 5, 6, 0, 0, 0, time.UTC); !wbb.ObservedAt.Equal(want) {
		t.Errorf("ObservedAt = %v, want %v", wbb.ObservedAt, want)
	}
	if !wbb.FetchedAt.Equal(fetched) {
		t.Errorf("FetchedAt = %v", wbb.FetchedAt)
	}
	if got := strings.Join(wbb.Variables(), ","); got != "air_temp,wind_speed" {
		t.Errorf("Variables() = %q", got)
	}

	quiet := st.saved[2]
	if len(quiet.Rows) != 1 || quiet.Rows[0].HasObservation() {
		t.Errorf("station without observations should keep one metadata row: %+v", quiet.Rows)
	}
	if !quiet.ObservedAt.Equal(fetched) {
		t.Errorf("ObservedAt without observations = %v, want fetch time", quiet.ObservedAt)
	}
}

func TestFetchAndStoreErrors(t *testing.T) {
	svc := NewService(&fakeStore{}, &fakeProvider{}, quietLogger())
	if err := svc.FetchAndStore(context.Background(), nil, nil); !errors.Is(err, ErrNoStations) {
		t.Errorf("expected ErrNoStations, got %v", err)
	}

	upstream := errors.New("boom")
	svc = NewService(&fakeStore{}, &fakeProvider{err: upstream}, quietLogger())
	if err := svc.FetchAndStore(context.Background(), []string{"WBB"}, nil); !errors.Is(err, upstream) {
		t.Errorf("expected wrapped provider error, got %v", err)
	}

	saveErr := errors.New("disk full")
	provider := &fakeProvider{bodies: map[mesonet.Service]string{mesonet.ServiceLatest: latestBody}}
	svc = NewService(&fakeStore{err: saveErr}, provider, quietLogger())
	if err := svc.FetchAndStore(context.Background(), []string{"WBB"}, nil); !errors.Is(err, saveErr) {
		t.Errorf("expected store error, got %v", err)
	}

	svc = NewService(&fakeStore{}, nil, quietLogger())
	if err := svc.FetchAndStore(context.Background(), []string{"WBB"}, nil); err == nil {
		t.Error("expected error without provider")
	}
}

func TestWide(t *testing.T) {
	provider := &fakeProvider{bodies: map[mesonet.Service]string{mesonet.ServiceTimeSeries: timeseriesBody}}
	svc := NewService(&fakeStore{}, provider, quietLogger())

	wide, err := svc.Wide(context.Background(), mesonet.Params{"stid": "WBB"}, 1, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(wide.Rows) != 2 || !wide.HasColumn("air_temp") {
		t.Errorf("unexpected wide table: %+v", wide)
	}

	if _, err := svc.Wide(context.Background(), mesonet.Params{"stid": "WBB"}, 1, true); !errors.Is(err, normalize.ErrUsage) {
		t.Errorf("expected ErrUsage without wind columns, got %v", err)
	}
}

func TestQueryDispatch(t *testing.T) {
	provider := &fakeProvider{bodies: map[mesonet.Service]string{
		mesonet.ServiceLatest:     latestBody,
		mesonet.ServiceMetadata:   latestBody,
		mesonet.ServiceQCSegments: latestBody,
	}}
	svc := NewService(&fakeStore{}, provider, quietLogger())
	ctx := context.Background()

	v, err := svc.Query(ctx, mesonet.ServiceLatest, nil)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if table, ok := v.(*normalize.Table); !ok || len(table.Rows) != 4 {
		t.Errorf("latest should normalize to a table with 4 rows, got %T %+v", v, v)
	}

	v, err = svc.Query(ctx, mesonet.ServiceMetadata, nil)
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if stations, ok := v.([]normalize.Station); !ok || len(stations) != 3 {
		t.Errorf("metadata should normalize to 3 stations, got %T", v)
	}

	v, err = svc.Query(ctx, mesonet.ServiceQCSegments, nil)
	if err != nil {
		t.Fatalf("qcsegments: %v", err)
	}
	if _, ok := v.(*mesonet.Response); !ok {
		t.Errorf("qcsegments should return the raw response, got %T", v)
	}
}
