// Copyright 2020 The OpenZipkin Authors
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
Package grpc contains gRPC server instrumentation which derives the Zipkin
remote Endpoint of each incoming RPC from its peer.
*/
package grpc

import (
	"context"

	"google.golang.org/grpc/peer"

	zipkin "github.com/openzipkin/zipkin-go-endpoint"
	"github.com/openzipkin/zipkin-go-endpoint/model"
)

// RemoteEndpointFromContext returns the Endpoint of the gRPC peer found in
// ctx, or nil if there is no peer or its address holds no IP address.
func RemoteEndpointFromContext(ctx context.Context, name string) *model.Endpoint {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return nil
	}

	ep, err := zipkin.NewEndpointFromAddr(name, p.Addr)
	if err != nil {
		// not an IP based transport, fall back to the textual form
		ep = zipkin.NewEndpointOrNil(name, p.Addr.String())
	}
	if ep.Empty() {
		return nil
	}
	return ep
}
