package mesonet

import (
	"fmt"
	"strings"
)

// Service names a Mesonet API service.
type Service string

const (
	ServiceTimeSeries    Service = "timeseries"
	ServiceLatest        Service = "latest"
	ServiceNearestTime   Service = "nearesttime"
	ServicePrecipitation Service = "precipitation"
	ServiceQCSegments    Service = "qcsegments"
	ServiceLatency       Service = "latency"
	ServiceMetadata      Service = "metadata"

	ServiceQCTypes      Service = "qctypes"
	ServiceVariables    Service = "variables"
	ServiceNetworks     Service = "networks"
	ServiceNetworkTypes Service = "networktypes"
)

// DefaultBaseURL is the root of the public Mesonet API.
const DefaultBaseURL = "https://api.synopticdata.com/v2"

var stationSelectors = keySet(
	"stid", "state", "country", "nwszone", "nwsfirezone", "cwa", "gacc", "subgacc",
	"county", "vars", "varsoperator", "network", "radius", "bbox", "height", "width",
	"spacing", "networkimportance", "status", "complete", "fields",
)

var qcOptions = keySet("qc", "qc_remove_data", "qc_flags", "qc_checks")

// recognized holds the option keys each service accepts, token included.
var recognized = map[Service]map[string]struct{}{
	ServiceTimeSeries: union(stationSelectors, qcOptions, keySet(
		"token", "start", "end", "recent", "obtimezone", "showemptystations", "showemptyvars",
		"units", "precip", "all_reports", "hfmetars", "sensorvars", "timeformat", "output",
	)),
	ServiceLatest: union(stationSelectors, qcOptions, keySet(
		"token", "obtimezone", "showemptystations", "showemptyvars", "units", "within",
		"minmax", "minmaxtype", "minmaxtimezone", "hfmetars", "sensorvars", "timeformat", "output",
	)),
	ServiceNearestTime: union(stationSelectors, qcOptions, keySet(
		"token", "attime", "within", "obtimezone", "showemptystations", "showemptyvars",
		"units", "hfmetars", "sensorvars", "timeformat", "output",
	)),
	ServicePrecipitation: union(stationSelectors, keySet(
		"token", "start", "end", "recent", "pmode", "interval", "obtimezone",
		"showemptystations", "units", "interval_window", "all_reports", "timeformat", "output",
	)),
	ServiceQCSegments: union(stationSelectors, keySet(
		"token", "start", "end", "recent", "inside", "obtimezone", "showemptystations",
		"qc_checks", "output",
	)),
	ServiceLatency: union(stationSelectors, keySet(
		"token", "start", "end", "obtimezone", "showemptystations", "stats", "timeformat", "output",
	)),
	ServiceMetadata: union(stationSelectors, keySet(
		"token", "complete", "sensorvars", "obrange", "timeformat", "output",
	)),
	ServiceQCTypes:      keySet("token", "shortname", "id"),
	ServiceVariables:    keySet("token"),
	ServiceNetworks:     keySet("token", "id", "shortname", "sortby"),
	ServiceNetworkTypes: keySet("token", "id"),
}

// ignoredKeys are always removed from the outgoing request. The normalizer
// depends on ISO timestamps, a JSON body, every field and UTC times.
var ignoredKeys = keySet("timeformat", "output", "fields", "obtimezone")

// ParseService validates a service name, case-insensitively.
func ParseService(name string) (Service, error) {
	s := Service(strings.ToLower(strings.TrimSpace(name)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownService, name)
	}
	return s, nil
}

// Valid reports whether s is a known service.
func (s Service) Valid() bool {
	_, ok := recognized[s]
	return ok
}

// IsStationService reports whether the service lives under /stations.
func (s Service) IsStationService() bool {
	switch s {
	case ServiceTimeSeries, ServiceLatest, ServiceNearestTime, ServicePrecipitation,
		ServiceQCSegments, ServiceLatency, ServiceMetadata:
		return true
	}
	return false
}

// Endpoint returns the service URL under baseURL.
func (s Service) Endpoint(baseURL string) string {
	baseURL = strings.TrimRight(baseURL, "/")
	if s.IsStationService() {
		return baseURL + "/stations/" + string(s)
	}
	return baseURL + "/" + string(s)
}

// Recognizes reports whether key is an expected option for the service.
func (s Service) Recognizes(key string) bool {
	_, ok := recognized[s][key]
	return ok
}

func keySet(keys ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}

func union(sets ...map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for _, s := range sets {
		for k := range s {
			out[k] = struct{}{}
		}
	}
	return out
}
