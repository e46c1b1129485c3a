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

// Package codec serializes a set of named, typed entity values into the
// canonical byte key addressing one logical row in the online store.
// Components are ordered by join key before encoding, so two rows describing
// the same entity with fields in different order produce identical keys.
// Equality is purely byte-level; there is no decode.
package codec

import (
	"encoding/binary"
	"math"
	"sort"

	apierrors "github.com/featdb/featdb/errors"
	"github.com/featdb/featdb/proto"
	"github.com/featdb/featdb/util"
)

type EntityPair struct {
	JoinKey string
	Value   proto.Value
}

// Encode serializes pairs into the canonical entity key. The input slice is
// not modified. Untyped values and duplicate join keys are rejected.
func Encode(pairs []EntityPair) ([]byte, error) {
	if len(pairs) == 0 {
		return nil, apierrors.NewInvalidEntityValue("entity key has no components")
	}

	sorted := make([]EntityPair, len(pairs))
	copy(sorted, pairs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].JoinKey < sorted[j].JoinKey })

	buf := make([]byte, 0, 16*len(sorted))
	var scratch [binary.MaxVarintLen64]byte
	for i, p := range sorted {
		if i > 0 && sorted[i-1].JoinKey == p.JoinKey {
			return nil, apierrors.NewInvalidEntityValue("duplicate entity join key %s", p.JoinKey)
		}

		n := binary.PutUvarint(scratch[:], uint64(len(p.JoinKey)))
		buf = append(buf, scratch[:n]...)
		buf = append(buf, util.StringsToBytes(p.JoinKey)...)

		vb, err := appendValue(buf, p)
		if err != nil {
			return nil, err
		}
		buf = vb
	}
	return buf, nil
}

// EncodeRow is Encode over a map of join key to value.
func EncodeRow(row map[string]proto.Value) ([]byte, error) {
	pairs := make([]EntityPair, 0, len(row))
	for k, v := range row {
		pairs = append(pairs, EntityPair{JoinKey: k, Value: v})
	}
	return Encode(pairs)
}

func appendValue(buf []byte, p EntityPair) ([]byte, error) {
	v := p.Value
	buf = append(buf, byte(v.Type))

	var scratch [8]byte
	switch v.Type {
	case proto.ValueTypeBool:
		if v.Bool {
			return append(buf, 1), nil
		}
		return append(buf, 0), nil
	case proto.ValueTypeInt32:
		binary.LittleEndian.PutUint32(scratch[:4], uint32(v.Int32))
		return append(buf, scratch[:4]...), nil
	case proto.ValueTypeInt64:
		binary.LittleEndian.PutUint64(scratch[:8], uint64(v.Int64))
		return append(buf, scratch[:8]...), nil
	case proto.ValueTypeFloat32:
		binary.LittleEndian.PutUint32(scratch[:4], math.Float32bits(v.Float32))
		return append(buf, scratch[:4]...), nil
	case proto.ValueTypeFloat64:
		binary.LittleEndian.PutUint64(scratch[:8], math.Float64bits(v.Float64))
		return append(buf, scratch[:8]...), nil
	case proto.ValueTypeString:
		buf = appendUvarint(buf, uint64(len(v.Str)))
		return append(buf, util.StringsToBytes(v.Str)...), nil
	case proto.ValueTypeBytes:
		buf = appendUvarint(buf, uint64(len(v.Bytes)))
		return append(buf, v.Bytes...), nil
	case proto.ValueTypeUnixTimestamp:
		binary.LittleEndian.PutUint64(scratch[:8], uint64(v.UnixMilli))
		return append(buf, scratch[:8]...), nil
	}
	return nil, apierrors.NewInvalidEntityValue("entity %s carries no typed value", p.JoinKey)
}

func appendUvarint(buf []byte, n uint64) []byte {
	var scratch [binary.MaxVarintLen64]byte
	size := binary.PutUvarint(scratch[:], n)
	return append(buf, scratch[:size]...)
}
