// Copyright 2022 The OpenZipkin Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package zipkin_proto3

import (
	"encoding/binary"
	"errors"
	"time"

	"golang.org/x/exp/slices"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/openzipkin/zipkin-go-endpoint/model"
)

var errNilSpan = errors.New("expecting a non-nil Span")

// SpanSerializer implements reporter.SpanSerializer
type SpanSerializer struct{}

// Serialize takes an array of zipkin SpanModel objects and serializes it to a protobuf blob.
func (SpanSerializer) Serialize(sms []*model.SpanModel) (protoBlob []byte, err error) {
	for _, sm := range sms {
		if sm == nil {
			return nil, errNilSpan
		}
		sb, err := appendSpan(nil, sm)
		if err != nil {
			return nil, err
		}
		protoBlob = protowire.AppendTag(protoBlob, listOfSpansSpans, protowire.BytesType)
		protoBlob = protowire.AppendBytes(protoBlob, sb)
	}
	return protoBlob, nil
}

// ContentType returns the ContentType needed for this encoding.
func (SpanSerializer) ContentType() string {
	return "application/x-protobuf"
}

// EncodeEndpoint serializes a single Endpoint message. Empty endpoints
// encode to an empty message.
func EncodeEndpoint(e *model.Endpoint) []byte {
	return appendEndpoint(nil, e)
}

func appendSpan(b []byte, sm *model.SpanModel) ([]byte, error) {
	b = appendBytesField(b, spanTraceID, traceIDToBytes(sm.TraceID))
	if sm.ParentID != nil {
		b = appendBytesField(b, spanParentID, idToBytes(*sm.ParentID))
	}
	b = appendBytesField(b, spanID, idToBytes(sm.ID))
	if k := kindToProto(sm.Kind); k != kindUnspecified {
		b = protowire.AppendTag(b, spanKind, protowire.VarintType)
		b = protowire.AppendVarint(b, k)
	}
	if sm.Name != "" {
		b = appendStringField(b, spanName, sm.Name)
	}
	if !sm.Timestamp.IsZero() {
		ts, err := timeToMicros(sm.Timestamp)
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, spanTimestamp, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, ts)
	}
	if sm.Duration < 0 {
		return nil, model.ErrValidDurationRequired
	}
	if sm.Duration > 0 {
		b = protowire.AppendTag(b, spanDuration, protowire.VarintType)
		b = protowire.AppendVarint(b, durationToMicros(sm.Duration))
	}
	if !sm.LocalEndpoint.Empty() {
		b = appendBytesField(b, spanLocalEndpoint, appendEndpoint(nil, sm.LocalEndpoint))
	}
	if !sm.RemoteEndpoint.Empty() {
		b = appendBytesField(b, spanRemoteEndpoint, appendEndpoint(nil, sm.RemoteEndpoint))
	}
	for _, a := range sm.Annotations {
		ts, err := timeToMicros(a.Timestamp)
		if err != nil {
			return nil, err
		}
		var ab []byte
		ab = protowire.AppendTag(ab, annotationTimestamp, protowire.Fixed64Type)
		ab = protowire.AppendFixed64(ab, ts)
		ab = appendStringField(ab, annotationValue, a.Value)
		b = appendBytesField(b, spanAnnotations, ab)
	}

	// tags in key order
	keys := make([]string, 0, len(sm.Tags))
	for k := range sm.Tags {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		var eb []byte
		eb = appendStringField(eb, mapEntryKey, k)
		eb = appendStringField(eb, mapEntryValue, sm.Tags[k])
		b = appendBytesField(b, spanTags, eb)
	}

	if sm.Debug {
		b = protowire.AppendTag(b, spanDebug, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	if sm.Shared {
		b = protowire.AppendTag(b, spanShared, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	return b, nil
}

func appendEndpoint(b []byte, e *model.Endpoint) []byte {
	if v := e.ServiceName(); v != "" {
		b = appendStringField(b, endpointServiceName, v)
	}
	if v := e.IPv4Bytes(); v != nil {
		b = appendBytesField(b, endpointIPv4, v)
	}
	if v := e.IPv6Bytes(); v != nil {
		b = appendBytesField(b, endpointIPv6, v)
	}
	if v := e.Port(); v != 0 {
		b = protowire.AppendTag(b, endpointPort, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v))
	}
	return b
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func traceIDToBytes(t model.TraceID) []byte {
	if t.High == 0 {
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, t.Low)
		return b
	}
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[:8], t.High)
	binary.BigEndian.PutUint64(b[8:], t.Low)
	return b
}

func idToBytes(id model.ID) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

// timeToMicros rejects times before the Unix epoch, as the JSON encoding
// does.
func timeToMicros(t time.Time) (uint64, error) {
	if t.Unix() < 1 {
		return 0, model.ErrValidTimestampRequired
	}
	return uint64(t.Round(time.Microsecond).UnixNano() / 1e3), nil
}

func durationToMicros(d time.Duration) uint64 {
	if d < time.Microsecond {
		// sub microsecond durations are reported as 1 microsecond
		return 1
	}
	return uint64(d.Round(time.Microsecond) / time.Microsecond)
}
