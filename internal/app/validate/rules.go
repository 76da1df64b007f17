// Package validate holds the pure per-sample admission rules. The composite
// check short-circuits on the first failure so the most specific reason wins.
package validate

import (
	"strings"

	"github.com/Shilirayen01/sys-acquisition/internal/domain"
)

// Reason identifies why a sample was rejected.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonInactiveTag  Reason = "inactive_tag"
	ReasonTypeMismatch Reason = "type_mismatch"
	ReasonNotAllowed   Reason = "value_not_allowed"
	ReasonOutOfRange   Reason = "out_of_range"
	ReasonBadQuality   Reason = "bad_quality"
)

// Check runs the ordered rule chain: active tag, type, enumerated values,
// range, quality. Enumerated values and ranges are mutually exclusive by
// data shape; quality comes last so an invalid bad-quality sample reports
// the more specific reason.
func Check(tag domain.Tag, value domain.Value, quality domain.OpcQuality) (bool, Reason) {
	if !tag.IsActive {
		return false, ReasonInactiveTag
	}
	if !TypeMatches(tag.DataType, value) {
		return false, ReasonTypeMismatch
	}
	if allowed := tag.AllowedList(); len(allowed) > 0 {
		if !valueAllowed(allowed, value) {
			return false, ReasonNotAllowed
		}
	} else if tag.HasRange() {
		if !InRange(tag, value) {
			return false, ReasonOutOfRange
		}
	}
	if !quality.IsGood() {
		return false, ReasonBadQuality
	}
	return true, ReasonNone
}

// TypeMatches accepts runtime values of the tag's logical type at matching
// or narrower width. Unknown logical types accept anything.
func TypeMatches(logical string, v domain.Value) bool {
	switch strings.ToLower(logical) {
	case "int16":
		return v.Kind == domain.ValueInt && bits(v) <= 16
	case "int32":
		return v.Kind == domain.ValueInt && bits(v) <= 32
	case "int64", "int":
		return v.Kind == domain.ValueInt
	case "uint16":
		return v.Kind == domain.ValueUint && bits(v) <= 16
	case "uint32":
		return v.Kind == domain.ValueUint && bits(v) <= 32
	case "uint64", "uint":
		return v.Kind == domain.ValueUint
	case "float":
		return v.Kind == domain.ValueFloat && bits(v) <= 32
	case "double":
		return v.Kind == domain.ValueFloat
	case "boolean", "bool":
		return v.Kind == domain.ValueBool
	case "string":
		return v.Kind == domain.ValueText
	default:
		return true
	}
}

// InRange checks the inclusive numeric bounds. Non-numeric values fail.
func InRange(tag domain.Tag, v domain.Value) bool {
	f, ok := v.AsFloat64()
	if !ok {
		return false
	}
	if tag.MinValue != nil && f < *tag.MinValue {
		return false
	}
	if tag.MaxValue != nil && f > *tag.MaxValue {
		return false
	}
	return true
}

func valueAllowed(allowed []string, v domain.Value) bool {
	rendered := v.DisplayString()
	for _, a := range allowed {
		if strings.EqualFold(a, rendered) {
			return true
		}
	}
	return false
}

func bits(v domain.Value) int {
	if v.Bits == 0 {
		return 64
	}
	return v.Bits
}
