package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Hit is one datastore search hit. Fields keeps every key of the hit verbatim
// so that re-encoding only changes what augmentation touched.
type Hit struct {
	Fields  map[string]json.RawMessage
	Score   float64
	Payload map[string]any
}

// ParseHit decodes a raw datastore hit.
func ParseHit(raw json.RawMessage) (*Hit, error) {
	h := &Hit{}
	if err := json.Unmarshal(raw, &h.Fields); err != nil {
		return nil, fmt.Errorf("decode hit: %w", err)
	}
	if h.Fields == nil {
		return nil, errors.New("decode hit: not an object")
	}
	if s, ok := h.Fields["score"]; ok {
		if err := json.Unmarshal(s, &h.Score); err != nil {
			return nil, fmt.Errorf("decode hit score: %w", err)
		}
	}
	if p, ok := h.Fields["payload"]; ok && string(p) != "null" {
		if err := json.Unmarshal(p, &h.Payload); err != nil {
			return nil, fmt.Errorf("decode hit payload: %w", err)
		}
	}
	return h, nil
}

// SetScore overwrites the hit's score. score must be finite.
func (h *Hit) SetScore(score float64) {
	h.Score = score
	h.Fields["score"] = strconv.AppendFloat(nil, score, 'g', -1, 64)
}

// MarshalJSON encodes the hit with its (possibly rewritten) fields.
func (h *Hit) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Fields)
}
