package adsb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// FlexibleField can hold either a string, a number or a boolean. Feeds disagree
// on the JSON type of many fields.
type FlexibleField struct {
	value any
}

// UnmarshalJSON implements custom JSON unmarshaling for FlexibleField
func (f *FlexibleField) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		f.value = nil
		return nil
	}

	// Try to unmarshal as a number first
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		f.value = num
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		f.value = str
		return nil
	}

	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		f.value = b
		return nil
	}

	return fmt.Errorf("cannot unmarshal %s into FlexibleField", data)
}

// Present reports whether the field was in the document
func (f *FlexibleField) Present() bool {
	return f.value != nil
}

// IsGround reports whether the field holds the "ground" altitude marker
func (f *FlexibleField) IsGround() bool {
	s, ok := f.value.(string)
	return ok && s == "ground"
}

// Float64 returns the value as a float64
func (f *FlexibleField) Float64() float64 {
	switch v := f.value.(type) {
	case float64:
		return v
	case string:
		if v == "" || v == "ground" {
			return 0
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// Int64 returns the value as an int64
func (f *FlexibleField) Int64() int64 {
	switch v := f.value.(type) {
	case float64:
		return int64(v)
	case string:
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return int64(f.Float64())
		}
		return i
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// Bool returns the value as a bool
func (f *FlexibleField) Bool() bool {
	switch v := f.value.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		b, err := strconv.ParseBool(v)
		return err == nil && b
	default:
		return false
	}
}

// String returns the value as a string
func (f *FlexibleField) String() string {
	switch v := f.value.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// first returns the first present field
func first(fields ...*FlexibleField) *FlexibleField {
	for _, f := range fields {
		if f.Present() {
			return f
		}
	}
	return &FlexibleField{}
}
