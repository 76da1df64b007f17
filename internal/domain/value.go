package domain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ValueKind discriminates the payload of a Value.
type ValueKind uint8

const (
	ValueEmpty ValueKind = iota
	ValueInt
	ValueUint
	ValueFloat
	ValueBool
	ValueText
	ValueRaw
)

// Value is a tagged variant for sample payloads. Bits records the width of
// the source representation (8, 16, 32 or 64) for the numeric kinds so type
// checks can reject widening.
type Value struct {
	Kind  ValueKind
	Bits  int
	Int   int64
	Uint  uint64
	Float float64
	Bool  bool
	Text  string
	Raw   []byte
}

func IntValue(v int64, bits int) Value   { return Value{Kind: ValueInt, Bits: bits, Int: v} }
func UintValue(v uint64, bits int) Value { return Value{Kind: ValueUint, Bits: bits, Uint: v} }
func FloatValue(v float64, bits int) Value {
	return Value{Kind: ValueFloat, Bits: bits, Float: v}
}
func BoolValue(v bool) Value   { return Value{Kind: ValueBool, Bool: v} }
func TextValue(v string) Value { return Value{Kind: ValueText, Text: v} }
func RawValue(v []byte) Value  { return Value{Kind: ValueRaw, Raw: v} }

// ValueOf converts a runtime value as produced by the OPC UA transport into
// a Value. Unsupported runtime types land in the raw kind via their string
// form so serialization stays total.
func ValueOf(v any) Value {
	switch x := v.(type) {
	case nil:
		return Value{}
	case int8:
		return IntValue(int64(x), 8)
	case int16:
		return IntValue(int64(x), 16)
	case int32:
		return IntValue(int64(x), 32)
	case int64:
		return IntValue(x, 64)
	case int:
		return IntValue(int64(x), 64)
	case uint8:
		return UintValue(uint64(x), 8)
	case uint16:
		return UintValue(uint64(x), 16)
	case uint32:
		return UintValue(uint64(x), 32)
	case uint64:
		return UintValue(x, 64)
	case float32:
		return FloatValue(float64(x), 32)
	case float64:
		return FloatValue(x, 64)
	case bool:
		return BoolValue(x)
	case string:
		return TextValue(x)
	case []byte:
		return RawValue(x)
	case time.Time:
		return TextValue(x.Format(time.RFC3339Nano))
	default:
		return RawValue([]byte(fmt.Sprint(x)))
	}
}

// AsFloat64 reports the numeric reading of the value, if it has one.
func (v Value) AsFloat64() (float64, bool) {
	switch v.Kind {
	case ValueInt:
		return float64(v.Int), true
	case ValueUint:
		return float64(v.Uint), true
	case ValueFloat:
		return v.Float, true
	default:
		return 0, false
	}
}

// DisplayString renders the value the way it is stored and compared against
// enumerated value lists.
func (v Value) DisplayString() string {
	switch v.Kind {
	case ValueInt:
		return strconv.FormatInt(v.Int, 10)
	case ValueUint:
		return strconv.FormatUint(v.Uint, 10)
	case ValueFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case ValueBool:
		return strconv.FormatBool(v.Bool)
	case ValueText:
		return v.Text
	case ValueRaw:
		return string(v.Raw)
	default:
		return ""
	}
}

func (v Value) typeName() string {
	switch v.Kind {
	case ValueInt:
		return fmt.Sprintf("int%d", v.numBits())
	case ValueUint:
		return fmt.Sprintf("uint%d", v.numBits())
	case ValueFloat:
		if v.numBits() == 32 {
			return "float"
		}
		return "double"
	case ValueBool:
		return "bool"
	case ValueText:
		return "string"
	case ValueRaw:
		return "raw"
	default:
		return "empty"
	}
}

func (v Value) numBits() int {
	if v.Bits == 0 {
		return 64
	}
	return v.Bits
}

type valueJSON struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	var inner any
	switch v.Kind {
	case ValueEmpty:
		return json.Marshal(valueJSON{Type: "empty"})
	case ValueInt:
		inner = v.Int
	case ValueUint:
		inner = v.Uint
	case ValueFloat:
		inner = v.Float
	case ValueBool:
		inner = v.Bool
	case ValueText:
		inner = v.Text
	case ValueRaw:
		inner = base64.StdEncoding.EncodeToString(v.Raw)
	}
	raw, err := json.Marshal(inner)
	if err != nil {
		return nil, err
	}
	return json.Marshal(valueJSON{Type: v.typeName(), Value: raw})
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var enc valueJSON
	if err := json.Unmarshal(data, &enc); err != nil {
		return fmt.Errorf("value: %w", err)
	}
	decode := func(dst any) error {
		if enc.Value == nil {
			return fmt.Errorf("value %q: missing payload", enc.Type)
		}
		return json.Unmarshal(enc.Value, dst)
	}

	switch enc.Type {
	case "empty", "":
		*v = Value{}
		return nil
	case "int8", "int16", "int32", "int64":
		var n int64
		if err := decode(&n); err != nil {
			return err
		}
		*v = IntValue(n, parseBits(enc.Type[3:]))
	case "uint8", "uint16", "uint32", "uint64":
		var n uint64
		if err := decode(&n); err != nil {
			return err
		}
		*v = UintValue(n, parseBits(enc.Type[4:]))
	case "float":
		var f float64
		if err := decode(&f); err != nil {
			return err
		}
		*v = FloatValue(f, 32)
	case "double":
		var f float64
		if err := decode(&f); err != nil {
			return err
		}
		*v = FloatValue(f, 64)
	case "bool":
		var b bool
		if err := decode(&b); err != nil {
			return err
		}
		*v = BoolValue(b)
	case "string":
		var s string
		if err := decode(&s); err != nil {
			return err
		}
		*v = TextValue(s)
	case "raw":
		var s string
		if err := decode(&s); err != nil {
			return err
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("value raw: %w", err)
		}
		*v = RawValue(b)
	default:
		return fmt.Errorf("value: unknown type %q", enc.Type)
	}
	return nil
}

func parseBits(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 64
	}
	return n
}
