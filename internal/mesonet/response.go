package mesonet

import "encoding/json"

// Summary is the SUMMARY object present in every API response.
type Summary struct {
	ResponseCode    int     `json:"RESPONSE_CODE"`
	ResponseMessage string  `json:"RESPONSE_MESSAGE"`
	NumberOfObjects int     `json:"NUMBER_OF_OBJECTS"`
	ResponseTime    float64 `json:"RESPONSE_TIME"`
}

// OK reports whether the API accepted the request.
func (s Summary) OK() bool {
	return s.ResponseCode == 1
}

// QCSummary describes the quality control applied to a response.
type QCSummary struct {
	ChecksApplied  []string `json:"QC_CHECKS_APPLIED"`
	TotalFlagged   float64  `json:"TOTAL_OBSERVATIONS_FLAGGED"`
	PercentFlagged float64  `json:"PERCENT_OF_TOTAL_OBSERVATIONS_FLAGGED"`
}

// Response is the decoded body of one API call. Station records and
// reference arrays are kept raw for the normalizer.
type Response struct {
	Summary      Summary           `json:"SUMMARY"`
	Station      []json.RawMessage `json:"STATION,omitempty"`
	Units        map[string]string `json:"UNITS,omitempty"`
	QCSummary    *QCSummary        `json:"QC_SUMMARY,omitempty"`
	QCTypes      []json.RawMessage `json:"QCTYPES,omitempty"`
	Variables    []json.RawMessage `json:"VARIABLES,omitempty"`
	Networks     []json.RawMessage `json:"MNET,omitempty"`
	NetworkTypes []json.RawMessage `json:"MNETCAT,omitempty"`

	Service  Service  `json:"-"`
	URL      string   `json:"-"`
	Warnings []string `json:"-"`
}
