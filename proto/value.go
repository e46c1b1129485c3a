// Copyright 2023 The FeatDB Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package proto

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math"
	"time"
)

type ValueType uint8

const (
	ValueTypeInvalid ValueType = iota
	ValueTypeBool
	ValueTypeInt32
	ValueTypeInt64
	ValueTypeFloat32
	ValueTypeFloat64
	ValueTypeString
	ValueTypeBytes
	ValueTypeUnixTimestamp
)

var valueTypeNames = map[ValueType]string{
	ValueTypeInvalid:       "Invalid",
	ValueTypeBool:          "Bool",
	ValueTypeInt32:         "Int32",
	ValueTypeInt64:         "Int64",
	ValueTypeFloat32:       "Float32",
	ValueTypeFloat64:       "Float64",
	ValueTypeString:        "String",
	ValueTypeBytes:         "Bytes",
	ValueTypeUnixTimestamp: "UnixTimestamp",
}

func (t ValueType) String() string {
	if name, ok := valueTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ValueType(%d)", uint8(t))
}

func (t ValueType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ValueType) UnmarshalText(data []byte) error {
	for vt, name := range valueTypeNames {
		if name == string(data) {
			*t = vt
			return nil
		}
	}
	return fmt.Errorf("unknown value type %q", string(data))
}

// Value is a tagged union over the feature value types. Only the field
// selected by Type is meaningful.
type Value struct {
	Type    ValueType
	Bool    bool
	Int32   int32
	Int64   int64
	Float32 float32
	Float64 float64
	Str     string
	Bytes   []byte
	// UnixMilli carries UnixTimestamp values as epoch milliseconds
	UnixMilli int64
}

func BoolValue(v bool) Value       { return Value{Type: ValueTypeBool, Bool: v} }
func Int32Value(v int32) Value     { return Value{Type: ValueTypeInt32, Int32: v} }
func Int64Value(v int64) Value     { return Value{Type: ValueTypeInt64, Int64: v} }
func Float32Value(v float32) Value { return Value{Type: ValueTypeFloat32, Float32: v} }
func Float64Value(v float64) Value { return Value{Type: ValueTypeFloat64, Float64: v} }
func StringValue(v string) Value   { return Value{Type: ValueTypeString, Str: v} }
func BytesValue(v []byte) Value    { return Value{Type: ValueTypeBytes, Bytes: v} }

func UnixTimestampValue(t time.Time) Value {
	return Value{Type: ValueTypeUnixTimestamp, UnixMilli: t.UnixMilli()}
}

func (v Value) IsZero() bool {
	return v.Type == ValueTypeInvalid
}

func (v Value) Equal(o Value) bool {
	if v.Type != o.Type {
		return false
	}
	switch v.Type {
	case ValueTypeBool:
		return v.Bool == o.Bool
	case ValueTypeInt32:
		return v.Int32 == o.Int32
	case ValueTypeInt64:
		return v.Int64 == o.Int64
	case ValueTypeFloat32:
		return v.Float32 == o.Float32
	case ValueTypeFloat64:
		return v.Float64 == o.Float64
	case ValueTypeString:
		return v.Str == o.Str
	case ValueTypeBytes:
		return bytes.Equal(v.Bytes, o.Bytes)
	case ValueTypeUnixTimestamp:
		return v.UnixMilli == o.UnixMilli
	}
	return false
}

// GoValue returns the plain Go representation used on the JSON wire.
func (v Value) GoValue() interface{} {
	switch v.Type {
	case ValueTypeBool:
		return v.Bool
	case ValueTypeInt32:
		return v.Int32
	case ValueTypeInt64:
		return v.Int64
	case ValueTypeFloat32:
		return v.Float32
	case ValueTypeFloat64:
		return v.Float64
	case ValueTypeString:
		return v.Str
	case ValueTypeBytes:
		return v.Bytes
	case ValueTypeUnixTimestamp:
		return time.UnixMilli(v.UnixMilli).UTC().Format(time.RFC3339Nano)
	}
	return nil
}

// ValueFromJSON coerces a decoded JSON scalar into a Value of the declared
// type. Numbers arrive as float64 from encoding/json; integer targets require
// an exact integral within range.
func ValueFromJSON(raw interface{}, t ValueType) (Value, error) {
	switch t {
	case ValueTypeBool:
		b, ok := raw.(bool)
		if !ok {
			return Value{}, typeMismatch(raw, t)
		}
		return BoolValue(b), nil

	case ValueTypeInt32:
		n, err := integral(raw, t)
		if err != nil {
			return Value{}, err
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return Value{}, fmt.Errorf("value %d out of range for %s", n, t)
		}
		return Int32Value(int32(n)), nil

	case ValueTypeInt64:
		n, err := integral(raw, t)
		if err != nil {
			return Value{}, err
		}
		return Int64Value(n), nil

	case ValueTypeFloat32:
		f, ok := raw.(float64)
		if !ok {
			return Value{}, typeMismatch(raw, t)
		}
		return Float32Value(float32(f)), nil

	case ValueTypeFloat64:
		f, ok := raw.(float64)
		if !ok {
			return Value{}, typeMismatch(raw, t)
		}
		return Float64Value(f), nil

	case ValueTypeString:
		s, ok := raw.(string)
		if !ok {
			return Value{}, typeMismatch(raw, t)
		}
		return StringValue(s), nil

	case ValueTypeBytes:
		s, ok := raw.(string)
		if !ok {
			return Value{}, typeMismatch(raw, t)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return Value{}, fmt.Errorf("value is not valid base64 for %s: %v", t, err)
		}
		return BytesValue(b), nil

	case ValueTypeUnixTimestamp:
		switch s := raw.(type) {
		case string:
			ts, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return Value{}, fmt.Errorf("value %q is not a RFC3339 timestamp: %v", s, err)
			}
			return UnixTimestampValue(ts), nil
		case float64:
			n, err := integral(raw, t)
			if err != nil {
				return Value{}, err
			}
			return UnixTimestampValue(time.Unix(n, 0)), nil
		default:
			return Value{}, typeMismatch(raw, t)
		}
	}
	return Value{}, fmt.Errorf("unknown value type %s", t)
}

func integral(raw interface{}, t ValueType) (int64, error) {
	f, ok := raw.(float64)
	if !ok {
		return 0, typeMismatch(raw, t)
	}
	n := int64(f)
	if float64(n) != f {
		return 0, fmt.Errorf("value %v is not an integer for %s", raw, t)
	}
	return n, nil
}

func typeMismatch(raw interface{}, t ValueType) error {
	return fmt.Errorf("value %v (%T) does not match declared type %s", raw, raw, t)
}
