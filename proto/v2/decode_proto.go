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
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/openzipkin/zipkin-go-endpoint/model"
)

// ParseSpans parses model.SpanModel values from data serialized by Protobuf3.
// debugWasSet is a boolean that toggles the Debug field of each Span. Its value
// is usually retrieved from the transport headers when the "X-B3-Flags" header has a value of 1.
func ParseSpans(protoBlob []byte, debugWasSet bool) (zss []*model.SpanModel, err error) {
	err = consumeFields(protoBlob, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != listOfSpansSpans || typ != protowire.BytesType {
			return skipField(num, typ, b)
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		zs, err := parseSpan(v, debugWasSet)
		if err != nil {
			return 0, err
		}
		zss = append(zss, zs)
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	return zss, nil
}

// DecodeEndpoint parses a single Endpoint message. Addresses pass through
// model.Builder, so IPv4-mapped IPv6 bytes decode as IPv4. When both
// families are present the IPv4 address wins.
func DecodeEndpoint(protoBlob []byte) (*model.Endpoint, error) {
	var (
		serviceName string
		ipv4, ipv6  []byte
		port        uint64
	)
	err := consumeFields(protoBlob, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == endpointServiceName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			serviceName = v
			return n, nil
		case num == endpointIPv4 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			ipv4 = v
			return n, nil
		case num == endpointIPv6 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			ipv6 = v
			return n, nil
		case num == endpointPort && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			port = v
			return n, nil
		}
		return skipField(num, typ, b)
	})
	if err != nil {
		return nil, err
	}

	builder := model.NewBuilder().ServiceName(serviceName)
	if len(ipv6) > 0 && !builder.ParseIPBytes(ipv6) {
		return nil, fmt.Errorf("invalid IPv6: has length %d yet wanted length 16", len(ipv6))
	}
	if len(ipv4) > 0 && !builder.ParseIPBytes(ipv4) {
		return nil, fmt.Errorf("invalid IPv4: has length %d yet wanted length 4", len(ipv4))
	}
	// port is an int32 on the wire
	if err = builder.Port(int(int32(port))); err != nil {
		return nil, err
	}
	return builder.Build(), nil
}

func parseSpan(protoBlob []byte, debugWasSet bool) (*model.SpanModel, error) {
	var (
		zs                = &model.SpanModel{}
		traceID, id       []byte
		parentID          []byte
		hasID, hasTraceID bool
	)
	zs.Debug = debugWasSet

	err := consumeFields(protoBlob, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch typ {
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			switch num {
			case spanTraceID:
				traceID, hasTraceID = v, true
			case spanParentID:
				parentID = v
			case spanID:
				id, hasID = v, true
			case spanName:
				zs.Name = string(v)
			case spanLocalEndpoint:
				ep, err := DecodeEndpoint(v)
				if err != nil {
					return 0, fmt.Errorf("LocalEndpoint: %w", err)
				}
				zs.LocalEndpoint = emptyToNil(ep)
			case spanRemoteEndpoint:
				ep, err := DecodeEndpoint(v)
				if err != nil {
					return 0, fmt.Errorf("RemoteEndpoint: %w", err)
				}
				zs.RemoteEndpoint = emptyToNil(ep)
			case spanAnnotations:
				a, err := parseAnnotation(v)
				if err != nil {
					return 0, fmt.Errorf("Annotation: %w", err)
				}
				zs.Annotations = append(zs.Annotations, a)
			case spanTags:
				k, val, err := parseMapEntry(v)
				if err != nil {
					return 0, fmt.Errorf("Tags: %w", err)
				}
				if zs.Tags == nil {
					zs.Tags = make(map[string]string)
				}
				zs.Tags[k] = val
			}
			return n, nil
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			switch num {
			case spanKind:
				zs.Kind = kindFromProto(v)
			case spanDuration:
				zs.Duration = microsToDuration(v)
			case spanDebug:
				zs.Debug = zs.Debug || protowire.DecodeBool(v)
			case spanShared:
				zs.Shared = protowire.DecodeBool(v)
			}
			return n, nil
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			if num == spanTimestamp {
				ts, err := microsToTime(v)
				if err != nil {
					return 0, err
				}
				zs.Timestamp = ts
			}
			return n, nil
		}
		return skipField(num, typ, b)
	})
	if err != nil {
		return nil, err
	}

	if zs.TraceID, err = traceIDFromBytes(traceID, hasTraceID); err != nil {
		return nil, err
	}
	if len(parentID) > 0 {
		pid, err := idFromBytes(parentID)
		if err != nil {
			return nil, fmt.Errorf("invalid ParentID: %w", err)
		}
		zs.ParentID = &pid
	}
	if !hasID || len(id) == 0 {
		return nil, errors.New("expected a non-nil SpanID")
	}
	if zs.ID, err = idFromBytes(id); err != nil {
		return nil, fmt.Errorf("invalid SpanID: %w", err)
	}
	return zs, nil
}

func parseAnnotation(protoBlob []byte) (a model.Annotation, err error) {
	err = consumeFields(protoBlob, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == annotationTimestamp && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return n, nil
			}
			ts, err := microsToTime(v)
			if err != nil {
				return 0, err
			}
			a.Timestamp = ts
			return n, nil
		case num == annotationValue && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			a.Value = v
			return n, nil
		}
		return skipField(num, typ, b)
	})
	return a, err
}

func parseMapEntry(protoBlob []byte) (key, value string, err error) {
	err = consumeFields(protoBlob, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ == protowire.BytesType && (num == mapEntryKey || num == mapEntryValue) {
			v, n := protowire.ConsumeString(b)
			if num == mapEntryKey {
				key = v
			} else {
				value = v
			}
			return n, nil
		}
		return skipField(num, typ, b)
	})
	return key, value, err
}

// consumeFields walks the fields of a message. fn consumes the value of each
// field and returns the number of bytes read; a negative count is a protowire
// parse error.
func consumeFields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}

func skipField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return n, nil
}

func traceIDFromBytes(b []byte, present bool) (model.TraceID, error) {
	switch {
	case present && len(b) == 16:
		return model.TraceID{
			High: binary.BigEndian.Uint64(b[:8]),
			Low:  binary.BigEndian.Uint64(b[8:]),
		}, nil
	case present && len(b) == 8:
		return model.TraceID{Low: binary.BigEndian.Uint64(b)}, nil
	}
	return model.TraceID{}, fmt.Errorf("invalid TraceID: has length %d yet wanted length 16", len(b))
}

func idFromBytes(b []byte) (model.ID, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("has length %d yet wanted length 8", len(b))
	}
	return model.ID(binary.BigEndian.Uint64(b)), nil
}

func emptyToNil(e *model.Endpoint) *model.Endpoint {
	if e.Empty() {
		return nil
	}
	return e
}

func microsToDuration(us uint64) time.Duration {
	if us > math.MaxInt64/1000 {
		return time.Duration(math.MaxInt64)
	}
	// us to ns; ns are the units of Duration
	return time.Duration(us * 1e3)
}

// microsToTime rejects timestamps that do not fit in UnixNano.
func microsToTime(us uint64) (time.Time, error) {
	if us == 0 {
		return time.Time{}, nil
	}
	if us > math.MaxInt64/1000 {
		return time.Time{}, fmt.Errorf("%w: %d microseconds is out of range", model.ErrValidTimestampRequired, us)
	}
	return time.Unix(0, int64(us)*1e3).UTC(), nil
}
