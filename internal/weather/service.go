package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/i474232898/mesonet-data-aggregation/internal/mesonet"
	"github.com/i474232898/mesonet-data-aggregation/internal/normalize"
)

// ErrNoStations is returned when a poll is requested without stations.
var ErrNoStations = errors.New("no stations to fetch")

// DefaultWithin bounds how old a polled latest observation may be.
const DefaultWithin = 2 * time.Hour

// Service orchestrates fetching from the Mesonet API, normalizing the
// response and persisting snapshots.
type Service struct {
	store      Store
	provider   Provider
	normalizer *normalize.Normalizer
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates a new Service.
func NewService(store Store, provider Provider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      store,
		provider:   provider,
		normalizer: normalize.New(logger),
		logger:     logger,
		now:        time.Now,
	}
}

// FetchAndStore requests the latest observations for stids in a single
// call and stores one snapshot per returned station.
func (s *Service) FetchAndStore(ctx context.Context, stids, vars []string) error {
	if len(stids) == 0 {
		return ErrNoStations
	}
	if s.provider == nil {
		return errors.New("no mesonet provider configured")
	}

	params := mesonet.Params{
		"stid":   stids,
		"within": DefaultWithin,
	}
	if len(vars) > 0 {
		params["vars"] = vars
	}

	s.logger.Debug("fetching latest observations", "stations", len(stids))
	resp, err := s.provider.Get(ctx, mesonet.ServiceLatest, params)
	if err != nil {
		// Keep the last good snapshot; the caller decides whether to retry next tick.
		return fmt.Errorf("fetch latest for %d stations: %w", len(stids), err)
	}

	table, err := s.normalizer.LatestNearest(resp)
	if err != nil {
		return err
	}

	snapshots := SnapshotsFromTable(table, s.now())
	for _, snap := range snapshots {
		if err := s.store.SaveSnapshot(snap); err != nil {
			return fmt.Errorf("save snapshot for %s: %w", snap.STID, err)
		}
	}
	s.logger.Info("stored snapshots", "stations", len(snapshots), "rows", len(table.Rows))
	return nil
}

// Observations runs a live latest, nearest time or time series query.
func (s *Service) Observations(ctx context.Context, service mesonet.Service, params mesonet.Params) (*normalize.Table, error) {
	resp, err := s.get(ctx, service, params)
	if err != nil {
		return nil, err
	}
	return s.normalizer.Observations(resp)
}

// EnrichedObservations runs an observation query and applies opts to the
// resulting table.
func (s *Service) EnrichedObservations(ctx context.Context, service mesonet.Service, params mesonet.Params, opts EnrichOptions) (*normalize.Table, error) {
	table, err := s.Observations(ctx, service, params)
	if err != nil {
		return nil, err
	}
	if opts.Empty() {
		return table, nil
	}
	if err := Enrich(ctx, s.provider, table, params, opts, s.logger); err != nil {
		return nil, err
	}
	return table, nil
}

// Wide runs a time series query and pivots it on sensorIndex, optionally
// adding wind vector columns.
func (s *Service) Wide(ctx context.Context, params mesonet.Params, sensorIndex uint32, wind bool) (*normalize.WideTable, error) {
	table, err := s.Observations(ctx, mesonet.ServiceTimeSeries, params)
	if err != nil {
		return nil, err
	}
	wide := normalize.Pivot(table.Rows, normalize.PivotOptions{SensorIndex: sensorIndex})
	if wind {
		if err := wide.WithWindUV(); err != nil {
			return nil, err
		}
	}
	return wide, nil
}

// Query runs any service and returns its normalized form.
func (s *Service) Query(ctx context.Context, service mesonet.Service, params mesonet.Params) (any, error) {
	resp, err := s.get(ctx, service, params)
	if err != nil {
		return nil, err
	}

	switch service {
	case mesonet.ServiceLatest, mesonet.ServiceNearestTime, mesonet.ServiceTimeSeries:
		return s.normalizer.Observations(resp)
	case mesonet.ServicePrecipitation:
		return s.normalizer.Precipitation(resp)
	case mesonet.ServiceLatency:
		return s.normalizer.Latency(resp)
	case mesonet.ServiceMetadata:
		return s.normalizer.Stations(resp)
	case mesonet.ServiceQCTypes:
		return normalize.QCTypes(resp)
	case mesonet.ServiceVariables:
		return normalize.Variables(resp)
	case mesonet.ServiceNetworks:
		return normalize.Networks(resp)
	case mesonet.ServiceNetworkTypes:
		return normalize.NetworkTypes(resp)
	default:
		return resp, nil
	}
}

func (s *Service) get(ctx context.Context, service mesonet.Service, params mesonet.Params) (*mesonet.Response, error) {
	if s.provider == nil {
		return nil, errors.New("no mesonet provider configured")
	}
	return s.provider.Get(ctx, service, params)
}

// GetLatest delegates to the underlying store.
func (s *Service) GetLatest(stid string) (Snapshot, error) {
	return s.store.GetLatest(stid)
}

// GetRange delegates to the underlying store.
func (s *Service) GetRange(stid string, from, to time.Time) ([]Snapshot, error) {
	return s.store.GetRange(stid, from, to)
}
