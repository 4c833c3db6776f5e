package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// CacheValue is one entry of the geocoding cache: either a place result or,
// under the water namespace, a bare boolean.
type CacheValue struct {
	Place *PlaceResult
	Water *bool
}

// PlaceValue wraps a place result for storage.
func PlaceValue(r PlaceResult) CacheValue {
	return CacheValue{Place: &r}
}

// WaterValue wraps a water flag for storage.
func WaterValue(w bool) CacheValue {
	return CacheValue{Water: &w}
}

// MarshalJSON encodes a water flag as a JSON boolean and a place as an object.
func (v CacheValue) MarshalJSON() ([]byte, error) {
	switch {
	case v.Water != nil:
		return json.Marshal(*v.Water)
	case v.Place != nil:
		return json.Marshal(*v.Place)
	default:
		return nil, errors.New("empty cache value")
	}
}

// UnmarshalJSON accepts either a boolean or a place object.
func (v *CacheValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("empty cache value")
	}
	switch data[0] {
	case 't', 'f':
		var w bool
		if err := json.Unmarshal(data, &w); err != nil {
			return fmt.Errorf("decode water flag: %w", err)
		}
		*v = CacheValue{Water: &w}
	case 'n':
		// null water flags were written by releases that recorded lookup errors.
		w := false
		*v = CacheValue{Water: &w}
	default:
		var r PlaceResult
		if err := json.Unmarshal(data, &r); err != nil {
			return fmt.Errorf("decode place result: %w", err)
		}
		*v = CacheValue{Place: &r}
	}
	return nil
}
