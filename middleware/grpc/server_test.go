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

package grpc_test

import (
	"context"
	"net"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/protobuf/types/known/emptypb"

	zipkingrpc "github.com/openzipkin/zipkin-go-endpoint/middleware/grpc"
	"github.com/openzipkin/zipkin-go-endpoint/propagation/context/endpoint"
)

// call invokes an arbitrary method and returns the remote endpoint the
// server saw.
func call(addr string) string {
	conn, err := grpc.Dial(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	gomega.Expect(err).ToNot(gomega.HaveOccurred())
	defer func() { _ = conn.Close() }()

	var header metadata.MD
	err = conn.Invoke(
		context.Background(), "/zipkin.testing.Echo/Endpoint",
		&emptypb.Empty{}, &emptypb.Empty{},
		grpc.Header(&header),
	)
	gomega.Expect(err).ToNot(gomega.HaveOccurred())

	values := header.Get(remoteEndpointHeader)
	gomega.Expect(values).To(gomega.HaveLen(1))

	return values[0]
}

var _ = ginkgo.Describe("gRPC Server", func() {
	ginkgo.It("stores the peer as remote endpoint", func() {
		gomega.Expect(call(serverAddr)).To(gomega.HavePrefix("Endpoint{ipv4=127.0.0.1, port="))
	})

	ginkgo.It("applies the remote service name", func() {
		gomega.Expect(call(customServerAddr)).To(gomega.HavePrefix("Endpoint{serviceName=client, ipv4=127.0.0.1, port="))
	})
})

var _ = ginkgo.Describe("RemoteEndpointFromContext", func() {
	ginkgo.It("returns nil without peer", func() {
		gomega.Expect(zipkingrpc.RemoteEndpointFromContext(context.Background(), "")).To(gomega.BeNil())
	})

	ginkgo.It("converts a tcp peer", func() {
		ctx := peer.NewContext(context.Background(), &peer.Peer{
			Addr: &net.TCPAddr{IP: net.ParseIP("2001:db8::c001"), Port: 50051},
		})

		ep := zipkingrpc.RemoteEndpointFromContext(ctx, "Backend")
		gomega.Expect(ep.String()).To(gomega.Equal("Endpoint{serviceName=backend, ipv6=2001:db8::c001, port=50051}"))
	})

	ginkgo.It("returns nil for a unix socket peer", func() {
		ctx := peer.NewContext(context.Background(), &peer.Peer{
			Addr: &net.UnixAddr{Name: "/tmp/zipkin.sock", Net: "unix"},
		})

		gomega.Expect(zipkingrpc.RemoteEndpointFromContext(ctx, "")).To(gomega.BeNil())
	})
})

var _ = ginkgo.Describe("Server interceptors", func() {
	ginkgo.It("stores the peer for streams", func() {
		gomega.Expect(call(interceptorServerAddr)).To(gomega.HavePrefix("Endpoint{serviceName=stream, ipv4=127.0.0.1, port="))
	})

	ginkgo.It("stores the peer for unary calls", func() {
		ctx := peer.NewContext(context.Background(), &peer.Peer{
			Addr: &net.TCPAddr{IP: net.ParseIP("::ffff:192.0.2.33"), Port: 443},
		})
		interceptor := zipkingrpc.UnaryServerInterceptor()

		resp, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/zipkin.testing.Echo/Endpoint"},
			func(ctx context.Context, _ interface{}) (interface{}, error) {
				return endpoint.FromContext(ctx).String(), nil
			},
		)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(resp).To(gomega.Equal("Endpoint{ipv4=192.0.2.33, port=443}"))
	})

	ginkgo.It("leaves the context alone without peer", func() {
		interceptor := zipkingrpc.UnaryServerInterceptor()

		resp, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/zipkin.testing.Echo/Endpoint"},
			func(ctx context.Context, _ interface{}) (interface{}, error) {
				return endpoint.FromContext(ctx) == nil, nil
			},
		)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(resp).To(gomega.BeTrue())
	})
})
