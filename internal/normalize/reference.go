package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/i474232898/mesonet-data-aggregation/internal/mesonet"
)

// QCType describes one quality control check.
type QCType struct {
	ID        uint32 `json:"id"`
	ShortName string `json:"shortname"`
	Name      string `json:"name"`
	SourceID  uint32 `json:"source_id"`
	Source    string `json:"source,omitempty"`
}

// Variable is one entry of the variable catalogue.
type Variable struct {
	Variable string `json:"variable"`
	VID      uint32 `json:"vid"`
	LongName string `json:"long_name"`
	Unit     string `json:"unit"`
}

// Network is one station network.
type Network struct {
	MNetID              uint32     `json:"mnet_id"`
	ShortName           string     `json:"shortname"`
	LongName            string     `json:"longname"`
	URL                 string     `json:"url,omitempty"`
	Category            uint32     `json:"category"`
	LastObservation     *time.Time `json:"last_observation"`
	ActiveStations      *int64     `json:"active_stations"`
	ReportingStations   *int64     `json:"reporting_stations"`
	TotalStations       *int64     `json:"total_stations"`
	PeriodOfRecordStart *time.Time `json:"period_of_record_start"`
	PeriodOfRecordEnd   *time.Time `json:"period_of_record_end"`
}

// NetworkType is one network category.
type NetworkType struct {
	MNetCatID           uint32     `json:"mnetcat_id"`
	Name                string     `json:"name"`
	Description         string     `json:"description,omitempty"`
	PeriodOfRecordStart *time.Time `json:"period_of_record_start"`
	PeriodOfRecordEnd   *time.Time `json:"period_of_record_end"`
}

// QCTypes decodes the QCTYPES array.
func QCTypes(resp *mesonet.Response) ([]QCType, error) {
	if resp == nil {
		return nil, ErrNoResponse
	}
	out := make([]QCType, 0, len(resp.QCTypes))
	for i, raw := range resp.QCTypes {
		var rec struct {
			ID        flexUint   `json:"ID"`
			ShortName flexString `json:"SHORTNAME"`
			Name      flexString `json:"NAME"`
			SourceID  flexUint   `json:"SOURCE_ID"`
			Source    flexString `json:"SOURCE"`
		}
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("qctypes entry %d: %w", i, err)
		}
		out = append(out, QCType{
			ID:        uint32(rec.ID),
			ShortName: string(rec.ShortName),
			Name:      string(rec.Name),
			SourceID:  uint32(rec.SourceID),
			Source:    string(rec.Source),
		})
	}
	return out, nil
}

// Variables decodes the VARIABLES array, a list of single-key objects
// mapping the variable name to its description.
func Variables(resp *mesonet.Response) ([]Variable, error) {
	if resp == nil {
		return nil, ErrNoResponse
	}
	var out []Variable
	for i, raw := range resp.Variables {
		var entry map[string]struct {
			VID      flexUint   `json:"vid"`
			LongName flexString `json:"long_name"`
			Unit     flexString `json:"unit"`
		}
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("variables entry %d: %w", i, err)
		}
		names := make([]string, 0, len(entry))
		for name := range entry {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			v := entry[name]
			out = append(out, Variable{
				Variable: name,
				VID:      uint32(v.VID),
				LongName: string(v.LongName),
				Unit:     string(v.Unit),
			})
		}
	}
	return out, nil
}

// Networks decodes the MNET array.
func Networks(resp *mesonet.Response) ([]Network, error) {
	if resp == nil {
		return nil, ErrNoResponse
	}
	out := make([]Network, 0, len(resp.Networks))
	for i, raw := range resp.Networks {
		var rec struct {
			ID                flexUint        `json:"ID"`
			ShortName         flexString      `json:"SHORTNAME"`
			LongName          flexString      `json:"LONGNAME"`
			URL               flexString      `json:"URL"`
			Category          flexUint        `json:"CATEGORY"`
			LastObservation   flexTime        `json:"LAST_OBSERVATION"`
			ActiveStations    flexInt         `json:"ACTIVE_STATIONS"`
			ReportingStations flexInt         `json:"REPORTING_STATIONS"`
			TotalStations     flexInt         `json:"TOTAL_STATIONS"`
			PeriodOfRecord    *periodOfRecord `json:"PERIOD_OF_RECORD"`
		}
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("networks entry %d: %w", i, err)
		}
		n := Network{
			MNetID:            uint32(rec.ID),
			ShortName:         string(rec.ShortName),
			LongName:          string(rec.LongName),
			URL:               string(rec.URL),
			Category:          uint32(rec.Category),
			LastObservation:   rec.LastObservation.ptr(),
			ActiveStations:    rec.ActiveStations.ptr(),
			ReportingStations: rec.ReportingStations.ptr(),
			TotalStations:     rec.TotalStations.ptr(),
		}
		if rec.PeriodOfRecord != nil {
			n.PeriodOfRecordStart = rec.PeriodOfRecord.Start.ptr()
			n.PeriodOfRecordEnd = rec.PeriodOfRecord.End.ptr()
		}
		out = append(out, n)
	}
	return out, nil
}

// NetworkTypes decodes the MNETCAT array.
func NetworkTypes(resp *mesonet.Response) ([]NetworkType, error) {
	if resp == nil {
		return nil, ErrNoResponse
	}
	out := make([]NetworkType, 0, len(resp.NetworkTypes))
	for i, raw := range resp.NetworkTypes {
		var rec struct {
			ID             flexUint        `json:"ID"`
			Name           flexString      `json:"NAME"`
			Description    flexString      `json:"DESCRIPTION"`
			PeriodOfRecord *periodOfRecord `json:"PERIOD_OF_RECORD"`
		}
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("networktypes entry %d: %w", i, err)
		}
		nt := NetworkType{
			MNetCatID:   uint32(rec.ID),
			Name:        string(rec.Name),
			Description: string(rec.Description),
		}
		if rec.PeriodOfRecord != nil {
			nt.PeriodOfRecordStart = rec.PeriodOfRecord.Start.ptr()
			nt.PeriodOfRecordEnd = rec.PeriodOfRecord.End.ptr()
		}
		out = append(out, nt)
	}
	return out, nil
}

// WithNetworkName sets the short or long network name on every row whose
// mnet_id matches one of networks. which is "short" or "long".
func WithNetworkName(rows []Row, networks []Network, which string) ([]Row, error) {
	if which != "short" && which != "long" {
		return nil, fmt.Errorf("%w: network name must be short or long, got %q", ErrUsage, which)
	}
	names := make(map[uint32]string, len(networks))
	for _, n := range networks {
		if which == "short" {
			names[n.MNetID] = n.ShortName
		} else {
			names[n.MNetID] = n.LongName
		}
	}

	out := make([]Row, len(rows))
	copy(out, rows)
	for i := range out {
		out[i].NetworkName = names[out[i].MNetID]
	}
	return out, nil
}
