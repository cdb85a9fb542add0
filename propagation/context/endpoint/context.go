/*
Package endpoint implements logic for propagating Zipkin Endpoints through
Go's context.Context.
*/
package endpoint

import (
	"context"

	"github.com/openzipkin/zipkin-go-endpoint/model"
)

// FromContext retrieves a Zipkin Endpoint from Go's context propagation
// mechanism if found. If not found, returns nil.
func FromContext(ctx context.Context) *model.Endpoint {
	if e, ok := ctx.Value(endpointKey).(*model.Endpoint); ok {
		return e
	}
	return nil
}

// NewContext stores a Zipkin Endpoint into Go's context propagation mechanism.
func NewContext(ctx context.Context, e *model.Endpoint) context.Context {
	return context.WithValue(ctx, endpointKey, e)
}

type ctxKey struct{}

var endpointKey = ctxKey{}
