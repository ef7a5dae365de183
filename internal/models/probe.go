package models

import (
	"bytes"
	"encoding/json"
)

// ProbePath is a health check path that remembers whether the request named
// it at all. Set with an empty Path means the probe was switched off.
type ProbePath struct {
	Path string
	Set  bool
}

// ProbePathOf returns an explicitly set path.
func ProbePathOf(path string) ProbePath {
	return ProbePath{Path: path, Set: true}
}

// UnmarshalJSON only runs when the key is present, so null disables the probe
// and a missing key leaves Set false.
func (p *ProbePath) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*p = ProbePath{Set: true}
		return nil
	}
	var path string
	if err := json.Unmarshal(data, &path); err != nil {
		return err
	}
	*p = ProbePathOf(path)
	return nil
}

func (p ProbePath) MarshalJSON() ([]byte, error) {
	if p.Path == "" {
		return []byte("null"), nil
	}
	return json.Marshal(p.Path)
}
