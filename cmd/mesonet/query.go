package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/i474232898/mesonet-data-aggregation/internal/export"
	"github.com/i474232898/mesonet-data-aggregation/internal/mesonet"
	"github.com/i474232898/mesonet-data-aggregation/internal/weather"
)

var queryServices = []mesonet.Service{
	mesonet.ServiceTimeSeries,
	mesonet.ServiceLatest,
	mesonet.ServiceNearestTime,
	mesonet.ServicePrecipitation,
	mesonet.ServiceQCSegments,
	mesonet.ServiceLatency,
	mesonet.ServiceMetadata,
	mesonet.ServiceQCTypes,
	mesonet.ServiceVariables,
	mesonet.ServiceNetworks,
	mesonet.ServiceNetworkTypes,
}

type queryOptions struct {
	stid    []string
	vars    []string
	start   string
	end     string
	recent  string
	within  string
	attime  string
	obrange string
	extra   []string

	format      string
	output      string
	wide        bool
	sensorIndex uint32
	wind        bool
	measurement string
	influx      export.InfluxConfig
	enrich      weather.EnrichOptions
}

func newQueryCmd(app *cli, service mesonet.Service) *cobra.Command {
	opts := &queryOptions{}

	cmd := &cobra.Command{
		Use:   string(service),
		Short: fmt.Sprintf("Request the %s service", service),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, app, service, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.format, "format", "f", "json", "output format: csv, json, influx or met")
	f.StringVarP(&opts.output, "output", "o", "", "write to file instead of stdout")
	f.StringArrayVarP(&opts.extra, "param", "p", nil, "extra API parameter as key=value (repeatable)")

	if service.IsStationService() {
		f.StringSliceVar(&opts.stid, "stid", nil, "station ids")
		f.StringSliceVar(&opts.vars, "vars", nil, "variables")
	}

	switch service {
	case mesonet.ServiceTimeSeries, mesonet.ServicePrecipitation, mesonet.ServiceQCSegments, mesonet.ServiceLatency:
		f.StringVar(&opts.start, "start", "", "start time (YYYY-MM-DD HH:MM or YYYYMMDDHHMM)")
		f.StringVar(&opts.end, "end", "", "end time")
		if service != mesonet.ServiceLatency {
			f.StringVar(&opts.recent, "recent", "", "look back window, e.g. 6h or 1d12h")
		}
	case mesonet.ServiceLatest:
		f.StringVar(&opts.within, "within", "", "max observation age, e.g. 2h")
	case mesonet.ServiceNearestTime:
		f.StringVar(&opts.attime, "attime", "", "target time")
		f.StringVar(&opts.within, "within", "", "max distance from attime, e.g. 30m")
	case mesonet.ServiceMetadata:
		f.StringVar(&opts.obrange, "obrange", "", "stations reporting in YYYYMMDD[,YYYYMMDD]")
	}

	if isObservationService(service) {
		f.BoolVar(&opts.wide, "wide", false, "pivot to one column per variable")
		f.Uint32Var(&opts.sensorIndex, "sensor-index", 1, "sensor index kept by --wide")
		f.BoolVar(&opts.wind, "wind", false, "add wind_u and wind_v columns (requires --wide)")
		f.StringVar(&opts.enrich.NetworkName, "network-name", "", "join network names: short or long")
		f.BoolVar(&opts.enrich.LocalTime, "local-time", false, "write timestamps in each station's time zone")
		if service == mesonet.ServiceTimeSeries {
			f.BoolVar(&opts.enrich.Latency, "with-latency", false, "join latency from the latency service")
		}
		f.StringVar(&opts.measurement, "measurement", export.DefaultMeasurement, "influx measurement name")
		f.StringVar(&opts.influx.Addr, "influx-addr", "", "upload to this InfluxDB address instead of printing")
		f.StringVar(&opts.influx.Username, "influx-user", "", "InfluxDB username")
		f.StringVar(&opts.influx.Password, "influx-password", "", "InfluxDB password")
		f.StringVar(&opts.influx.Database, "influx-db", "weather", "InfluxDB database")
	}
	return cmd
}

func runQuery(cmd *cobra.Command, app *cli, service mesonet.Service, opts *queryOptions) error {
	params, err := opts.params()
	if err != nil {
		return err
	}

	token, err := app.cfg.ResolveToken(app.token)
	if err != nil {
		return err
	}
	client, err := mesonet.NewClient(token,
		mesonet.WithBaseURL(app.cfg.BaseURL),
		mesonet.WithHTTPClient(&http.Client{Timeout: app.cfg.HTTPTimeout}),
		mesonet.WithLogger(app.log),
	)
	if err != nil {
		return err
	}

	resp, err := client.Get(cmd.Context(), service, params)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	return render(cmd.Context(), w, client, resp, params, opts, app.log)
}

// params turns the flags into request parameters. Values are passed as
// strings and validated by the request builder.
func (o *queryOptions) params() (mesonet.Params, error) {
	p := mesonet.Params{}
	if len(o.stid) > 0 {
		p["stid"] = o.stid
	}
	if len(o.vars) > 0 {
		p["vars"] = o.vars
	}
	for key, value := range map[string]string{
		"start":   o.start,
		"end":     o.end,
		"recent":  o.recent,
		"within":  o.within,
		"attime":  o.attime,
		"obrange": o.obrange,
	} {
		if value != "" {
			p[key] = value
		}
	}

	for _, kv := range o.extra {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q: want key=value", kv)
		}
		p[key] = value
	}
	return p, nil
}

func isObservationService(s mesonet.Service) bool {
	return s == mesonet.ServiceTimeSeries || s == mesonet.ServiceLatest || s == mesonet.ServiceNearestTime
}
