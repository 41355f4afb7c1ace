package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrUnrecognizedKey is returned when an observation key follows neither
// the "set" nor the "value" naming grammar.
var ErrUnrecognizedKey = errors.New("unrecognized observation key")

// Observation keys look like <variable>_set_<sensor><d> for time series and
// <variable>_value_<sensor><d> for latest/nearest responses, where the
// optional trailing "d" marks a derived variable.
var (
	setKeyPattern   = regexp.MustCompile(`^(.+)_set_(\d+)(d?)$`)
	valueKeyPattern = regexp.MustCompile(`^(.+)_value_(\d+)(d?)$`)
)

// VariableKey is the decomposed form of an observation key.
type VariableKey struct {
	Variable    string
	SensorIndex uint32
	IsDerived   bool
}

// ParseSetKey decomposes a time series key such as "air_temp_set_1".
func ParseSetKey(key string) (VariableKey, error) {
	return parseKey(setKeyPattern, key)
}

// ParseValueKey decomposes a latest/nearest key such as "wind_speed_value_2".
func ParseValueKey(key string) (VariableKey, error) {
	return parseKey(valueKeyPattern, key)
}

// ParseKey accepts either grammar.
func ParseKey(key string) (VariableKey, error) {
	if k, err := ParseSetKey(key); err == nil {
		return k, nil
	}
	return ParseValueKey(key)
}

func parseKey(pattern *regexp.Regexp, key string) (VariableKey, error) {
	m := pattern.FindStringSubmatch(key)
	if m == nil {
		return VariableKey{}, fmt.Errorf("%w: %q", ErrUnrecognizedKey, key)
	}
	idx, err := strconv.ParseUint(m[2], 10, 32)
	if err != nil || idx == 0 {
		return VariableKey{}, fmt.Errorf("%w: %q has sensor index %s", ErrUnrecognizedKey, key, m[2])
	}
	return VariableKey{
		Variable:    m[1],
		SensorIndex: uint32(idx),
		IsDerived:   m[3] == "d",
	}, nil
}
