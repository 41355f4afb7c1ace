package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/i474232898/mesonet-data-aggregation/internal/mesonet"
)

// Station is the normalized metadata of one monitoring site.
type Station struct {
	STID                string     `json:"stid"`
	ID                  uint32     `json:"id"`
	MNetID              uint32     `json:"mnet_id"`
	Name                string     `json:"name"`
	Elevation           *float64   `json:"elevation"`
	Latitude            *float64   `json:"latitude"`
	Longitude           *float64   `json:"longitude"`
	ElevDEM             *float64   `json:"elev_dem"`
	State               string     `json:"state"`
	Country             string     `json:"country"`
	Timezone            string     `json:"timezone"`
	IsActive            *bool      `json:"is_active"`
	IsRestricted        *bool      `json:"is_restricted"`
	PeriodOfRecordStart *time.Time `json:"period_of_record_start"`
	PeriodOfRecordEnd   *time.Time `json:"period_of_record_end"`
	NetworkName         string     `json:"network_name,omitempty"`
}

type periodOfRecord struct {
	Start flexTime `json:"start"`
	End   flexTime `json:"end"`
}

// stationRecord is one element of the STATION array. The nested
// observation, sensor and QC portions are kept raw until the shape of the
// response is known. UNITS and QC_FLAGGED are not carried past this point.
type stationRecord struct {
	STID           flexString
	ID             flexUint
	MNetID         flexUint
	Name           flexString
	Elevation      flexFloat
	Latitude       flexFloat
	Longitude      flexFloat
	ElevDEM        flexFloat
	State          flexString
	Country        flexString
	Timezone       flexString
	Status         flexString
	Restricted     flexBool
	PeriodOfRecord *periodOfRecord

	Observations    map[string]json.RawMessage
	SensorVariables map[string]map[string]json.RawMessage
	QC              map[string]json.RawMessage
	Latency         *latencyRecord
}

// decodeStationRecord decodes one STATION element field by field. A field
// with an unexpected shape is reported and left empty; the rest of the
// station survives.
func decodeStationRecord(fields map[string]json.RawMessage, index int, w *warnings) *stationRecord {
	rec := &stationRecord{}
	rec.STID = decodeField[flexString](fields, "STID", "", w)

	stid := strings.TrimSpace(string(rec.STID))
	if stid == "" {
		stid = fmt.Sprintf("#%d", index)
	}

	rec.ID = decodeField[flexUint](fields, "ID", stid, w)
	rec.MNetID = decodeField[flexUint](fields, "MNET_ID", stid, w)
	rec.Name = decodeField[flexString](fields, "NAME", stid, w)
	rec.Elevation = decodeField[flexFloat](fields, "ELEVATION", stid, w)
	rec.Latitude = decodeField[flexFloat](fields, "LATITUDE", stid, w)
	rec.Longitude = decodeField[flexFloat](fields, "LONGITUDE", stid, w)
	rec.ElevDEM = decodeField[flexFloat](fields, "ELEV_DEM", stid, w)
	rec.State = decodeField[flexString](fields, "STATE", stid, w)
	rec.Country = decodeField[flexString](fields, "COUNTRY", stid, w)
	rec.Timezone = decodeField[flexString](fields, "TIMEZONE", stid, w)
	rec.Status = decodeField[flexString](fields, "STATUS", stid, w)
	rec.Restricted = decodeField[flexBool](fields, "RESTRICTED", stid, w)
	rec.PeriodOfRecord = decodeField[*periodOfRecord](fields, "PERIOD_OF_RECORD", stid, w)

	rec.Observations = decodeField[map[string]json.RawMessage](fields, "OBSERVATIONS", stid, w)
	rec.SensorVariables = decodeField[map[string]map[string]json.RawMessage](fields, "SENSOR_VARIABLES", stid, w)
	rec.QC = decodeField[map[string]json.RawMessage](fields, "QC", stid, w)
	rec.Latency = decodeField[*latencyRecord](fields, "LATENCY", stid, w)
	return rec
}

// decodeField decodes fields[name] into a T. Missing and null fields give
// the zero value without a warning.
func decodeField[T any](fields map[string]json.RawMessage, name, stid string, w *warnings) T {
	var v T
	raw, ok := fields[name]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return v
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		w.addf("unknown shape for %s at station %s: %v", name, stid, err)
		var zero T
		return zero
	}
	return v
}

func (r *stationRecord) station() Station {
	st := Station{
		STID:         strings.TrimSpace(string(r.STID)),
		ID:           uint32(r.ID),
		MNetID:       uint32(r.MNetID),
		Name:         string(r.Name),
		Elevation:    r.Elevation.ptr(),
		Latitude:     r.Latitude.ptr(),
		Longitude:    r.Longitude.ptr(),
		ElevDEM:      r.ElevDEM.ptr(),
		State:        string(r.State),
		Country:      string(r.Country),
		Timezone:     string(r.Timezone),
		IsActive:     activeFromStatus(string(r.Status)),
		IsRestricted: r.Restricted.ptr(),
	}
	if r.PeriodOfRecord != nil {
		st.PeriodOfRecordStart = r.PeriodOfRecord.Start.ptr()
		st.PeriodOfRecordEnd = r.PeriodOfRecord.End.ptr()
	}
	return st
}

func activeFromStatus(status string) *bool {
	var v bool
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "ACTIVE":
		v = true
	case "INACTIVE":
		v = false
	default:
		return nil
	}
	return &v
}

// decodeStations decodes the STATION array, keeping only the first record
// for a station identifier that appears more than once. Records that are not
// JSON objects are reported and skipped.
func decodeStations(raw []json.RawMessage, w *warnings) []*stationRecord {
	seen := make(map[string]struct{}, len(raw))
	out := make([]*stationRecord, 0, len(raw))
	for i, msg := range raw {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(msg, &fields); err != nil || fields == nil {
			w.addf("station record %d is not an object", i)
			continue
		}
		rec := decodeStationRecord(fields, i, w)
		stid := strings.TrimSpace(string(rec.STID))
		if _, dup := seen[stid]; dup {
			continue
		}
		seen[stid] = struct{}{}
		out = append(out, rec)
	}
	return out
}

// sensorIndices reads SENSOR_VARIABLES into variable -> sorted sensor indices.
func (r *stationRecord) sensorIndices() map[string][]uint32 {
	if len(r.SensorVariables) == 0 {
		return nil
	}
	out := make(map[string][]uint32, len(r.SensorVariables))
	for variable, sensors := range r.SensorVariables {
		for key := range sensors {
			k, err := ParseKey(key)
			if err != nil {
				continue
			}
			out[variable] = append(out[variable], k.SensorIndex)
		}
		sort.Slice(out[variable], func(i, j int) bool { return out[variable][i] < out[variable][j] })
	}
	return out
}

type warnings struct {
	list []string
}

func (w *warnings) addf(format string, args ...any) {
	w.list = append(w.list, fmt.Sprintf(format, args...))
}

// Stations normalizes the station metadata of any station-bearing response.
func (n *Normalizer) Stations(resp *mesonet.Response) ([]Station, error) {
	if resp == nil {
		return nil, ErrNoResponse
	}
	w := &warnings{}
	records := decodeStations(resp.Station, w)
	out := make([]Station, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.station())
	}
	for _, msg := range w.list {
		n.logger.Warn(msg, "service", string(resp.Service))
	}
	return out, nil
}
