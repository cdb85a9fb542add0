// Copyright 2021 The OpenZipkin Authors
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

package grpc

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/stats"

	"github.com/openzipkin/zipkin-go-endpoint/propagation/context/endpoint"
)

type serverHandler struct {
	remoteServiceName string
	logger            logrus.FieldLogger
}

// A ServerOption can be passed to NewServerHandler to customize the returned handler.
type ServerOption func(*serverHandler)

// RemoteServiceName sets the service name of the remote endpoints the
// handler creates.
func RemoteServiceName(name string) ServerOption {
	return func(h *serverHandler) {
		h.remoteServiceName = name
	}
}

// Logger sets the logger used to report RPCs without a usable peer address.
func Logger(logger logrus.FieldLogger) ServerOption {
	return func(h *serverHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewServerHandler returns a stats.Handler which can be used with
// grpc.StatsHandler to store the remote Endpoint of every RPC in its context.
// Service implementations retrieve it with endpoint.FromContext.
func NewServerHandler(options ...ServerOption) stats.Handler {
	h := &serverHandler{
		logger: logrus.StandardLogger(),
	}
	for _, option := range options {
		option(h)
	}
	return h
}

// HandleConn exists to satisfy gRPC stats.Handler.
func (s *serverHandler) HandleConn(_ context.Context, _ stats.ConnStats) {
	// no-op
}

// TagConn exists to satisfy gRPC stats.Handler.
func (s *serverHandler) TagConn(ctx context.Context, _ *stats.ConnTagInfo) context.Context {
	// no-op
	return ctx
}

// HandleRPC exists to satisfy gRPC stats.Handler.
func (s *serverHandler) HandleRPC(_ context.Context, _ stats.RPCStats) {
	// no-op
}

// TagRPC stores the remote Endpoint in the RPC context.
func (s *serverHandler) TagRPC(ctx context.Context, rti *stats.RPCTagInfo) context.Context {
	return s.withRemoteEndpoint(ctx, rti.FullMethodName)
}

func (s *serverHandler) withRemoteEndpoint(ctx context.Context, fullMethod string) context.Context {
	ep := RemoteEndpointFromContext(ctx, s.remoteServiceName)
	if ep == nil {
		s.logger.WithField("method", methodName(fullMethod)).Debug("no remote endpoint for rpc")
		return ctx
	}
	return endpoint.NewContext(ctx, ep)
}

func methodName(fullMethod string) string {
	name := strings.TrimPrefix(fullMethod, "/")
	name = strings.Replace(name, "/", ".", -1)
	return name
}
