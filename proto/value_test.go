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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValueFromJSONIntegral(t *testing.T) {
	v, err := ValueFromJSON(float64(50), ValueTypeInt64)
	require.NoError(t, err)
	require.Equal(t, int64(50), v.Int64)

	// Fractional numbers never coerce into integer columns.
	_, err = ValueFromJSON(float64(50.5), ValueTypeInt64)
	require.Error(t, err)

	_, err = ValueFromJSON(float64(1<<40), ValueTypeInt32)
	require.Error(t, err)

	v, err = ValueFromJSON(float64(-7), ValueTypeInt32)
	require.NoError(t, err)
	require.Equal(t, int32(-7), v.Int32)
}

func TestValueFromJSONTypeMismatch(t *testing.T) {
	_, err := ValueFromJSON("0.56", ValueTypeFloat32)
	require.Error(t, err)
	_, err = ValueFromJSON(true, ValueTypeString)
	require.Error(t, err)
	_, err = ValueFromJSON(float64(1), ValueTypeBool)
	require.Error(t, err)
}

func TestValueFromJSONTimestamp(t *testing.T) {
	ts := time.Date(2023, 6, 1, 12, 30, 0, 0, time.UTC)

	v, err := ValueFromJSON(ts.Format(time.RFC3339Nano), ValueTypeUnixTimestamp)
	require.NoError(t, err)
	require.Equal(t, ts.UnixMilli(), v.UnixMilli)

	// Epoch seconds are accepted too.
	v, err = ValueFromJSON(float64(ts.Unix()), ValueTypeUnixTimestamp)
	require.NoError(t, err)
	require.Equal(t, ts.UnixMilli(), v.UnixMilli)

	_, err = ValueFromJSON("last tuesday", ValueTypeUnixTimestamp)
	require.Error(t, err)
}

func TestValueFromJSONBytes(t *testing.T) {
	v, err := ValueFromJSON("aGVsbG8=", ValueTypeBytes)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), v.Bytes)

	_, err = ValueFromJSON("not base64!!", ValueTypeBytes)
	require.Error(t, err)
}

func TestValueEqual(t *testing.T) {
	require.True(t, Int64Value(42).Equal(Int64Value(42)))
	require.False(t, Int64Value(42).Equal(Int32Value(42)))
	require.True(t, BytesValue([]byte("a")).Equal(BytesValue([]byte("a"))))
	require.False(t, StringValue("a").Equal(StringValue("b")))
}

func TestValueGoValueTimestamp(t *testing.T) {
	ts := time.Date(2023, 6, 1, 12, 30, 0, 0, time.UTC)
	got := UnixTimestampValue(ts).GoValue()
	require.Equal(t, ts.Format(time.RFC3339Nano), got)
}
