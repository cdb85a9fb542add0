/*
Package reporter holds the Reporter interface which is used to ship span
records, and the endpoints they carry, to a Zipkin collector.

Subpackages of package reporter contain the supported reporter
implementations.
*/
package reporter

import "github.com/openzipkin/zipkin-go-endpoint/model"

// Reporter interface can be used to provide custom implementations to
// publish Zipkin Span data.
type Reporter interface {
	Send(model.SpanModel) // Send Span data to the reporter
	Close() error         // Close the reporter
}

type noopReporter struct{}

func (r *noopReporter) Send(model.SpanModel) {}
func (r *noopReporter) Close() error         { return nil }

// NewNoopReporter returns a no-op Reporter implementation.
func NewNoopReporter() Reporter {
	return &noopReporter{}
}
