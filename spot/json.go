package spot

import (
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSON encodes the spot as a single-line JSON object.
func (s *Spot) JSON() ([]byte, error) {
	return json.Marshal(s)
}

// FromJSON decodes a spot previously produced by JSON.
func FromJSON(data []byte) (*Spot, error) {
	var s Spot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
