/*
Package recorder implements a reporter to record spans in v2 format. It is
mostly useful in tests that assert on the endpoints a component attaches to
its spans.
*/
package recorder

import (
	"sync"

	"github.com/openzipkin/zipkin-go-endpoint/model"
)

// Reporter records Zipkin spans.
type Reporter struct {
	mtx   sync.Mutex
	spans []model.SpanModel
}

// NewReporter returns a new recording reporter.
func NewReporter() *Reporter {
	return &Reporter{}
}

// Send adds the provided span to the span list held by the recorder.
func (r *Reporter) Send(span model.SpanModel) {
	r.mtx.Lock()
	r.spans = append(r.spans, span)
	r.mtx.Unlock()
}

// Flush returns all recorded spans and clears its internal span storage
func (r *Reporter) Flush() []model.SpanModel {
	r.mtx.Lock()
	spans := r.spans
	r.spans = nil
	r.mtx.Unlock()
	return spans
}

// RemoteEndpoints returns the non empty remote endpoints of the recorded
// spans in the order they were sent. The recorder is left untouched.
func (r *Reporter) RemoteEndpoints() []*model.Endpoint {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	var endpoints []*model.Endpoint
	for _, span := range r.spans {
		if !span.RemoteEndpoint.Empty() {
			endpoints = append(endpoints, span.RemoteEndpoint)
		}
	}
	return endpoints
}

// Close flushes the reporter
func (r *Reporter) Close() error {
	r.Flush()
	return nil
}
