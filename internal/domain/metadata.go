package domain

import "strings"

// Machine is a programmable controller exposing an OPC UA endpoint.
// Inactive machines are never subscribed.
type Machine struct {
	ID           int32
	Name         string
	OpcEndpoint  string
	AutomateType string
	IsActive     bool
	Tags         []Tag
}

// ActiveTags returns the subset of the machine's tags with IsActive set.
func (m Machine) ActiveTags() []Tag {
	out := make([]Tag, 0, len(m.Tags))
	for _, t := range m.Tags {
		if t.IsActive {
			out = append(out, t)
		}
	}
	return out
}

// Tag is one monitored variable on a machine. NodeID is unique across the
// fleet. Either AllowedValues or the min/max pair may be set, not both.
type Tag struct {
	ID            int32
	MachineID     int32
	Name          string
	NodeID        string
	DataType      string
	Unit          string
	MinValue      *float64
	MaxValue      *float64
	AllowedValues string
	IsActive      bool
}

// AllowedList parses AllowedValues as a separator-delimited list of
// permissible string forms. Both comma and semicolon separators occur in
// seeded metadata.
func (t Tag) AllowedList() []string {
	if t.AllowedValues == "" {
		return nil
	}
	fields := strings.FieldsFunc(t.AllowedValues, func(r rune) bool {
		return r == ',' || r == ';'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// HasRange reports whether at least one numeric bound is configured.
func (t Tag) HasRange() bool {
	return t.MinValue != nil || t.MaxValue != nil
}
