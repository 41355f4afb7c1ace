package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/i474232898/mesonet-data-aggregation/internal/export"
	"github.com/i474232898/mesonet-data-aggregation/internal/mesonet"
	"github.com/i474232898/mesonet-data-aggregation/internal/normalize"
	"github.com/i474232898/mesonet-data-aggregation/internal/weather"
)

const (
	formatCSV    = "csv"
	formatJSON   = "json"
	formatInflux = "influx"
	formatMET    = "met"
)

// render normalizes resp and writes it in the requested format. Joins
// requested by opts.enrich go back to the API through provider.
func render(ctx context.Context, w io.Writer, provider weather.Provider, resp *mesonet.Response,
	params mesonet.Params, opts *queryOptions, log *slog.Logger) error {
	switch opts.format {
	case formatCSV, formatJSON, formatInflux, formatMET:
	default:
		return fmt.Errorf("%w: unknown format %q (csv, json, influx, met)", normalize.ErrUsage, opts.format)
	}
	if opts.wind && !opts.wide {
		return fmt.Errorf("%w: --wind requires --wide", normalize.ErrUsage)
	}

	n := normalize.New(log)
	if isObservationService(resp.Service) {
		table, err := n.Observations(resp)
		if err != nil {
			return err
		}
		if !opts.enrich.Empty() {
			if err := weather.Enrich(ctx, provider, table, params, opts.enrich, log); err != nil {
				return err
			}
		}
		if opts.wide {
			return renderWide(w, table, opts, log)
		}
		return renderLong(w, table, opts)
	}

	if opts.format != formatJSON {
		return fmt.Errorf("%w: the %s service only supports json output", normalize.ErrUsage, resp.Service)
	}

	var v any
	var err error
	switch resp.Service {
	case mesonet.ServicePrecipitation:
		v, err = n.Precipitation(resp)
	case mesonet.ServiceLatency:
		v, err = n.Latency(resp)
	case mesonet.ServiceMetadata:
		v, err = n.Stations(resp)
	case mesonet.ServiceQCTypes:
		v, err = normalize.QCTypes(resp)
	case mesonet.ServiceVariables:
		v, err = normalize.Variables(resp)
	case mesonet.ServiceNetworks:
		v, err = normalize.Networks(resp)
	case mesonet.ServiceNetworkTypes:
		v, err = normalize.NetworkTypes(resp)
	default:
		// qcsegments has no normalized form.
		v = resp
	}
	if err != nil {
		return err
	}
	return export.WriteJSON(w, v)
}

func renderLong(w io.Writer, table *normalize.Table, opts *queryOptions) error {
	switch opts.format {
	case formatCSV:
		return export.WriteCSV(w, table.Rows)
	case formatMET:
		return export.WriteMET(w, table.Rows)
	case formatInflux:
		bp, err := export.Batch(table.Observations(), opts.measurement, opts.influx)
		if err != nil {
			return err
		}
		if opts.influx.Addr != "" {
			if err := export.Upload(opts.influx, bp); err != nil {
				return err
			}
			_, err = fmt.Fprintf(w, "wrote %d points to %s\n", len(bp.Points()), opts.influx.Database)
			return err
		}
		return export.WriteLineProtocol(w, bp)
	default:
		return export.WriteJSON(w, table)
	}
}

func renderWide(w io.Writer, table *normalize.Table, opts *queryOptions, log *slog.Logger) error {
	wide := normalize.Pivot(table.Rows, normalize.PivotOptions{SensorIndex: opts.sensorIndex})
	if opts.wind {
		for _, st := range table.Stations {
			// Sensor lists are only present when requested with sensorvars.
			if _, known := table.Sensors[st.STID]; known && !table.CanDeriveWind(st.STID) {
				log.Warn("station has no wind speed and direction sensors", "stid", st.STID)
			}
		}
		if err := wide.WithWindUV(); err != nil {
			return err
		}
	}
	switch opts.format {
	case formatCSV:
		return export.WriteWideCSV(w, wide)
	case formatJSON:
		return export.WriteJSON(w, wide)
	default:
		return fmt.Errorf("%w: --wide supports csv and json output", normalize.ErrUsage)
	}
}
