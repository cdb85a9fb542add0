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
Package http contains an http.Handler middleware which derives the Zipkin
remote Endpoint of each incoming request.
*/
package http

import (
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	zipkin "github.com/openzipkin/zipkin-go-endpoint"
	"github.com/openzipkin/zipkin-go-endpoint/model"
	"github.com/openzipkin/zipkin-go-endpoint/propagation/context/endpoint"
)

const headerForwardedFor = "X-Forwarded-For"

type handler struct {
	next              http.Handler
	remoteServiceName string
	trustForwardedFor bool
	logger            logrus.FieldLogger
}

// ServerOption allows Middleware to be optionally configured.
type ServerOption func(*handler)

// RemoteServiceName sets the service name of the remote endpoints the
// middleware creates.
func RemoteServiceName(name string) ServerOption {
	return func(h *handler) {
		h.remoteServiceName = name
	}
}

// TrustForwardedFor makes the middleware take the remote address from the
// first entry of the X-Forwarded-For header when it holds an IP address.
// Only enable this behind a proxy which sets the header.
func TrustForwardedFor(enabled bool) ServerOption {
	return func(h *handler) {
		h.trustForwardedFor = enabled
	}
}

// Logger sets the logger used to report unusable remote addresses.
func Logger(logger logrus.FieldLogger) ServerOption {
	return func(h *handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewServerMiddleware returns a http.Handler middleware which stores the
// remote Endpoint of the request in its context. Handlers retrieve it with
// endpoint.FromContext.
func NewServerMiddleware(options ...ServerOption) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		h := &handler{
			next:   next,
			logger: logrus.StandardLogger(),
		}
		for _, option := range options {
			option(h)
		}
		return h
	}
}

// ServeHTTP implements http.Handler.
func (h handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	remoteEndpoint, err := zipkin.NewEndpoint(h.remoteServiceName, r.RemoteAddr)
	if err != nil {
		h.logger.WithError(err).WithField("remoteAddr", r.RemoteAddr).Debug("unable to derive remote endpoint")
	}

	if h.trustForwardedFor {
		if ep := forwardedFor(r, h.remoteServiceName); ep != nil {
			remoteEndpoint = ep
		}
	}

	if remoteEndpoint.Empty() {
		h.next.ServeHTTP(w, r)
		return
	}

	h.next.ServeHTTP(w, r.WithContext(endpoint.NewContext(r.Context(), remoteEndpoint)))
}

// RemoteEndpoint returns the Endpoint of the peer which sent r, or nil if
// its remote address holds no IP address.
func RemoteEndpoint(r *http.Request) *model.Endpoint {
	ep := zipkin.NewEndpointOrNil("", r.RemoteAddr)
	if ep.Empty() {
		return nil
	}
	return ep
}

func forwardedFor(r *http.Request, serviceName string) *model.Endpoint {
	v := r.Header.Get(headerForwardedFor)
	if v == "" {
		return nil
	}
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	b := model.NewBuilder().ServiceName(serviceName)
	if !b.ParseIP(strings.TrimSpace(v)) {
		return nil
	}
	return b.Build()
}
