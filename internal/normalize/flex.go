package normalize

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// The API is loose about scalar types: coordinates arrive as padded
// strings, identifiers as quoted numbers. These wrappers decode either form
// and treat anything unparseable as null.

type flexFloat struct {
	v     float64
	valid bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	*f = flexFloat{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			*f = flexFloat{v: v, valid: true}
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err == nil {
		*f = flexFloat{v: v, valid: true}
	}
	return nil
}

func (f flexFloat) ptr() *float64 {
	if !f.valid {
		return nil
	}
	v := f.v
	return &v
}

type flexUint uint32

func (u *flexUint) UnmarshalJSON(b []byte) error {
	*u = 0
	var f flexFloat
	_ = f.UnmarshalJSON(b)
	if f.valid && f.v >= 0 {
		*u = flexUint(uint32(f.v))
	}
	return nil
}

type flexInt struct {
	v     int64
	valid bool
}

func (i *flexInt) UnmarshalJSON(b []byte) error {
	*i = flexInt{}
	var f flexFloat
	_ = f.UnmarshalJSON(b)
	if f.valid {
		*i = flexInt{v: int64(f.v), valid: true}
	}
	return nil
}

func (i flexInt) ptr() *int64 {
	if !i.valid {
		return nil
	}
	v := i.v
	return &v
}

type flexBool struct {
	v     bool
	valid bool
}

func (fb *flexBool) UnmarshalJSON(b []byte) error {
	*fb = flexBool{}
	b = bytes.TrimSpace(b)
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}
	switch v := raw.(type) {
	case bool:
		*fb = flexBool{v: v, valid: true}
	case float64:
		*fb = flexBool{v: v != 0, valid: true}
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*fb = flexBool{v: parsed, valid: true}
		}
	}
	return nil
}

func (fb flexBool) ptr() *bool {
	if !fb.valid {
		return nil
	}
	v := fb.v
	return &v
}

type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	*s = ""
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}
	switch v := raw.(type) {
	case string:
		*s = flexString(v)
	case float64:
		*s = flexString(strconv.FormatFloat(v, 'f', -1, 64))
	case bool:
		*s = flexString(strconv.FormatBool(v))
	}
	return nil
}

type flexTime struct {
	t     time.Time
	valid bool
}

func (ft *flexTime) UnmarshalJSON(b []byte) error {
	*ft = flexTime{}
	var s *string
	if err := json.Unmarshal(b, &s); err != nil || s == nil {
		return nil
	}
	if t, ok := parseTimestamp(*s); ok {
		*ft = flexTime{t: t, valid: true}
	}
	return nil
}

func (ft flexTime) ptr() *time.Time {
	if !ft.valid {
		return nil
	}
	t := ft.t
	return &t
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimestamp reads an API timestamp into UTC. Timestamps without a zone
// are taken as UTC.
func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
