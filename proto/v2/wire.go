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

/*
Package zipkin_proto3 adds support for the Zipkin protobuf definition
(zipkin2/proto3/zipkin.proto) to allow Go applications to produce and
consume model.SpanModel and model.Endpoint values as protobuf serialized data.
*/
package zipkin_proto3

import (
	"github.com/openzipkin/zipkin-go-endpoint/model"
)

// field numbers of zipkin.proto
const (
	listOfSpansSpans = 1

	spanTraceID        = 1
	spanParentID       = 2
	spanID             = 3
	spanKind           = 4
	spanName           = 5
	spanTimestamp      = 6
	spanDuration       = 7
	spanLocalEndpoint  = 8
	spanRemoteEndpoint = 9
	spanAnnotations    = 10
	spanTags           = 11
	spanDebug          = 12
	spanShared         = 13

	endpointServiceName = 1
	endpointIPv4        = 2
	endpointIPv6        = 3
	endpointPort        = 4

	annotationTimestamp = 1
	annotationValue     = 2

	mapEntryKey   = 1
	mapEntryValue = 2
)

// Span.Kind enum values
const (
	kindUnspecified = iota
	kindClient
	kindServer
	kindProducer
	kindConsumer
)

func kindToProto(k model.Kind) uint64 {
	switch k {
	case model.Client:
		return kindClient
	case model.Server:
		return kindServer
	case model.Producer:
		return kindProducer
	case model.Consumer:
		return kindConsumer
	}
	return kindUnspecified
}

func kindFromProto(k uint64) model.Kind {
	switch k {
	case kindClient:
		return model.Client
	case kindServer:
		return model.Server
	case kindProducer:
		return model.Producer
	case kindConsumer:
		return model.Consumer
	}
	return model.Undetermined
}
