package domain

import (
	"encoding/json"
	"fmt"
)

// OpcQuality wraps the raw 32-bit OPC UA status word. The category is
// derived from the two most significant bits: 00 Good, 01 Uncertain,
// 10/11 Bad. Equality is over the raw word.
type OpcQuality struct {
	Word uint32
}

func QualityFromStatus(word uint32) OpcQuality {
	return OpcQuality{Word: word}
}

func (q OpcQuality) IsGood() bool      { return q.Word>>30 == 0 }
func (q OpcQuality) IsUncertain() bool { return q.Word>>30 == 1 }
func (q OpcQuality) IsBad() bool       { return q.Word>>30 >= 2 }

func (q OpcQuality) String() string {
	switch {
	case q.IsGood():
		return "Good"
	case q.IsUncertain():
		return "Uncertain"
	default:
		return "Bad"
	}
}

type qualityJSON struct {
	Code uint32 `json:"code"`
	Text string `json:"text,omitempty"`
}

// MarshalJSON emits the raw word plus its category; the word alone is
// authoritative on the way back in.
func (q OpcQuality) MarshalJSON() ([]byte, error) {
	return json.Marshal(qualityJSON{Code: q.Word, Text: q.String()})
}

func (q *OpcQuality) UnmarshalJSON(data []byte) error {
	var v qualityJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("quality: %w", err)
	}
	q.Word = v.Code
	return nil
}
