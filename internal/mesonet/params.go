package mesonet

import (
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CompactTimeFormat is the timestamp layout the API expects in requests.
const CompactTimeFormat = "200601021504"

// Params holds loosely-typed request options. Values may be strings,
// numbers, booleans, slices or arrays, time.Time or time.Duration.
type Params map[string]any

// Request is a fully encoded call to one service.
type Request struct {
	Service  Service
	Values   url.Values
	Warnings []string
}

var (
	timeKeys     = keySet("start", "end", "expire", "attime")
	durationKeys = keySet("recent", "within")
	onOffKeys    = keySet("qc", "qc_remove_data", "qc_flags")

	obrangePattern = regexp.MustCompile(`^\d{8,12}(,\d{8,12})?$`)
	numericPattern = regexp.MustCompile(`^\d+$`)
)

// dateTimeLayouts are tried in order for date strings. Single-digit month
// and day layouts also accept zero padded input.
var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-1-2T15:04:05Z07:00",
	"2006-1-2T15:04Z07:00",
	"2006-1-2 15:04:05Z07:00",
	"2006-1-2 15:04Z07:00",
	"2006-1-2T15:04:05",
	"2006-1-2T15:04",
	"2006-1-2 15:04:05",
	"2006-1-2 15:04",
	"2006-1-2",
}

// Build validates and encodes params for service. Unexpected keys produce
// warnings, malformed values produce a *ParamError.
func Build(service Service, params Params) (*Request, error) {
	if !service.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownService, service)
	}

	lowered, warnings := lowerKeys(params)

	switch service {
	case ServiceMetadata:
		for _, k := range []string{"start", "end"} {
			if _, ok := lowered[k]; ok {
				return nil, &ParamError{
					Key:    k,
					Value:  lowered[k],
					Reason: "the metadata service does not accept start or end; use obrange=(start, end) or obrange=start",
				}
			}
		}
	case ServicePrecipitation:
		if _, ok := lowered["pmode"]; !ok {
			lowered["pmode"] = "totals"
		}
	}

	req := &Request{Service: service, Values: url.Values{}, Warnings: warnings}

	keys := make([]string, 0, len(lowered))
	for k := range lowered {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := lowered[key]

		if !service.Recognizes(key) {
			req.Warnings = append(req.Warnings,
				fmt.Sprintf("'%s' is not an expected API parameter for the %s service", key, service))
		}
		if _, ok := ignoredKeys[key]; ok {
			req.Warnings = append(req.Warnings, fmt.Sprintf("the '%s' key is ignored", key))
			continue
		}

		encoded, err := encodeValue(key, value)
		if err != nil {
			return nil, err
		}
		req.Values.Set(key, encoded)
	}

	return req, nil
}

// lowerKeys lower-cases every key and drops nil values. When two keys differ
// only by case the one already in lower case wins, otherwise the first in
// sorted order; either way the collision is reported.
func lowerKeys(params Params) (Params, []string) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var warnings []string
	lowered := make(Params, len(params))
	from := make(map[string]string, len(params))
	for _, k := range keys {
		v := params[k]
		if v == nil {
			continue
		}
		lk := strings.ToLower(k)
		if prev, dup := from[lk]; dup {
			keep := prev
			if k == lk {
				keep = k
			}
			warnings = append(warnings, fmt.Sprintf("'%s' and '%s' name the same parameter; using '%s'", prev, k, keep))
			if keep != k {
				continue
			}
		}
		lowered[lk] = v
		from[lk] = k
	}
	return lowered, warnings
}

func encodeValue(key string, value any) (string, error) {
	if key == "obrange" {
		return encodeObrange(value)
	}

	if isList(value) {
		return joinList(value), nil
	}

	if b, ok := value.(bool); ok {
		if _, onOff := onOffKeys[key]; onOff {
			if b {
				return "on", nil
			}
			return "off", nil
		}
		if b {
			return "1", nil
		}
		return "0", nil
	}

	if _, ok := timeKeys[key]; ok {
		return encodeTime(key, value)
	}

	if _, ok := durationKeys[key]; ok {
		return encodeDuration(key, value)
	}

	return stringify(value), nil
}

func encodeTime(key string, value any) (string, error) {
	switch v := value.(type) {
	case time.Time:
		return FormatCompact(v), nil
	case *time.Time:
		if v == nil {
			return "", &ParamError{Key: key, Value: value, Reason: "nil time"}
		}
		return FormatCompact(*v), nil
	case string:
		if !strings.Contains(v, "-") {
			return v, nil
		}
		t, err := ParseDateTime(v)
		if err != nil {
			return "", &ParamError{
				Key:    key,
				Value:  v,
				Reason: "wrong datetime format; use a time.Time or a string like 'YYYY-MM-DD HH:MM'",
			}
		}
		return FormatCompact(t), nil
	}
	return stringify(value), nil
}

func encodeDuration(key string, value any) (string, error) {
	switch v := value.(type) {
	case time.Duration:
		return strconv.FormatInt(minutes(v), 10), nil
	case float64:
		return strconv.FormatInt(int64(v), 10), nil
	case float32:
		return strconv.FormatInt(int64(v), 10), nil
	case string:
		if numericPattern.MatchString(v) {
			return v, nil
		}
		m, err := DurationToMinutes(v)
		if err != nil {
			return "", &ParamError{Key: key, Value: v, Reason: err.Error()}
		}
		return strconv.FormatInt(m, 10), nil
	}
	return stringify(value), nil
}

func encodeObrange(value any) (string, error) {
	bad := &ParamError{
		Key:    "obrange",
		Value:  value,
		Reason: "use a single time or a pair of times like (start, end)",
	}

	switch v := value.(type) {
	case time.Time:
		return FormatCompact(v), nil
	case string:
		if obrangePattern.MatchString(v) {
			return v, nil
		}
		return "", bad
	}

	if !isList(value) {
		return "", bad
	}
	rv := reflect.ValueOf(value)
	if rv.Len() != 2 {
		return "", bad
	}

	parts := make([]string, 2)
	for i := range parts {
		switch e := rv.Index(i).Interface().(type) {
		case time.Time:
			parts[i] = FormatCompact(e)
		case string:
			parts[i] = e
		default:
			return "", bad
		}
	}
	_, firstIsTime := rv.Index(0).Interface().(time.Time)
	_, secondIsTime := rv.Index(1).Interface().(time.Time)
	if firstIsTime != secondIsTime {
		return "", bad
	}
	return parts[0] + "," + parts[1], nil
}

// ParseDateTime parses an ISO-like date string. Strings without an offset
// are taken as UTC.
func ParseDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a date-time", s)
}

// FormatCompact renders t as YYYYMMDDHHMM in UTC.
func FormatCompact(t time.Time) string {
	return t.UTC().Format(CompactTimeFormat)
}

func isList(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.([]byte); ok {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func joinList(v any) string {
	rv := reflect.ValueOf(v)
	parts := make([]string, rv.Len())
	for i := range parts {
		parts[i] = stringify(rv.Index(i).Interface())
	}
	return strings.Join(parts, ",")
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		return FormatCompact(x)
	case time.Duration:
		return strconv.FormatInt(minutes(x), 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}
