package weather

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/mesonet-data-aggregation/internal/mesonet"
	"github.com/i474232898/mesonet-data-aggregation/internal/normalize"
)

// EnrichOptions selects the optional joins applied to an observation table.
type EnrichOptions struct {
	Latency     bool   // join the latency service on station and time (time series only)
	NetworkName string // "short" or "long"; empty skips the join
	LocalTime   bool   // convert timestamps to each station's zone
}

// Empty reports whether no enrichment is requested.
func (o EnrichOptions) Empty() bool {
	return !o.Latency && o.NetworkName == "" && !o.LocalTime
}

// Enrich applies opts to table in place. The latency and network joins each
// issue one more request through p; params are the ones the table was
// fetched with.
func Enrich(ctx context.Context, p Provider, table *normalize.Table, params mesonet.Params, opts EnrichOptions, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.NetworkName != "" && opts.NetworkName != "short" && opts.NetworkName != "long" {
		return fmt.Errorf("%w: network name must be short or long, got %q", normalize.ErrUsage, opts.NetworkName)
	}
	if opts.Latency && table.Service != mesonet.ServiceTimeSeries {
		return fmt.Errorf("%w: latency can only be joined to time series", normalize.ErrUsage)
	}
	n := normalize.New(logger)

	if opts.Latency {
		lp, err := latencyParams(params, time.Now())
		if err != nil {
			return err
		}
		resp, err := p.Get(ctx, mesonet.ServiceLatency, lp)
		if err != nil {
			return fmt.Errorf("fetch latency: %w", err)
		}
		latency, err := n.Latency(resp)
		if err != nil {
			return err
		}
		table.Rows = normalize.JoinLatency(table.Rows, latency)
	}

	if opts.NetworkName != "" {
		if ids := networkIDs(table.Stations); len(ids) > 0 {
			resp, err := p.Get(ctx, mesonet.ServiceNetworks, mesonet.Params{"id": ids})
			if err != nil {
				return fmt.Errorf("fetch networks: %w", err)
			}
			networks, err := normalize.Networks(resp)
			if err != nil {
				return err
			}
			if table.Rows, err = normalize.WithNetworkName(table.Rows, networks, opts.NetworkName); err != nil {
				return err
			}
		}
	}

	if opts.LocalTime {
		for i := range table.Rows {
			r := &table.Rows[i]
			if r.DateTime == nil {
				continue
			}
			local, err := r.LocalTime()
			if err != nil {
				msg := fmt.Sprintf("keeping UTC: %v", err)
				table.Warnings = append(table.Warnings, msg)
				logger.Warn(msg)
				continue
			}
			r.DateTime = &local
		}
	}
	return nil
}

// latencyParams keeps the keys the latency service understands and turns a
// recent window into start and end, which is all latency accepts.
func latencyParams(params mesonet.Params, now time.Time) (mesonet.Params, error) {
	out := mesonet.Params{}
	var recent any
	for k, v := range params {
		key := strings.ToLower(k)
		if key == "recent" {
			recent = v
		}
		if mesonet.ServiceLatency.Recognizes(key) {
			out[key] = v
		}
	}
	if recent == nil || out["start"] != nil {
		return out, nil
	}

	req, err := mesonet.Build(mesonet.ServiceTimeSeries, mesonet.Params{"recent": recent})
	if err != nil {
		return nil, err
	}
	minutes, err := strconv.Atoi(req.Values.Get("recent"))
	if err != nil {
		return nil, &mesonet.ParamError{Key: "recent", Value: recent, Reason: "cannot derive a latency window"}
	}
	now = now.UTC()
	out["start"] = now.Add(-time.Duration(minutes) * time.Minute)
	out["end"] = now
	return out, nil
}

func networkIDs(stations []normalize.Station) []uint32 {
	seen := map[uint32]struct{}{}
	var ids []uint32
	for _, st := range stations {
		if st.MNetID == 0 {
			continue
		}
		if _, ok := seen[st.MNetID]; ok {
			continue
		}
		seen[st.MNetID] = struct{}{}
		ids = append(ids, st.MNetID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
