package reporter

import (
	"encoding/json"
	"errors"

	"github.com/openzipkin/zipkin-go-endpoint/model"
)

// ErrNilSpan is returned when a batch holds a nil span.
var ErrNilSpan = errors.New("expecting a non-nil Span")

// SpanSerializer describes the methods needed for allowing to set Span encoding
// type for the various Zipkin transports.
type SpanSerializer interface {
	Serialize([]*model.SpanModel) ([]byte, error)
	ContentType() string
}

// JSONSerializer implements the default Zipkin v2 JSON SpanSerializer.
type JSONSerializer struct{}

// Serialize takes an array of Zipkin SpanModel objects and returns a JSON
// encoding of it. Empty endpoints are left out of the output.
func (JSONSerializer) Serialize(spans []*model.SpanModel) ([]byte, error) {
	for _, s := range spans {
		if s == nil {
			return nil, ErrNilSpan
		}
	}
	return json.Marshal(spans)
}

// ContentType returns the ContentType needed for this encoding.
func (JSONSerializer) ContentType() string {
	return "application/json"
}
