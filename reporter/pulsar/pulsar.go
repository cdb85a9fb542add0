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
Package pulsar implements a Pulsar reporter to send spans to a Pulsar server/cluster.
*/
package pulsar

import (
	"context"
	"fmt"
	"sync"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/sirupsen/logrus"

	"github.com/openzipkin/zipkin-go-endpoint/model"
	"github.com/openzipkin/zipkin-go-endpoint/reporter"
)

// defaultPulsarTopic sets the standard Pulsar topic our Reporter will publish
// on. The default topic for zipkin-collector-pulsar is "zipkin", see:
// https://github.com/openzipkin/zipkin/tree/master/zipkin-collector/pulsar
const defaultPulsarTopic = "zipkin"

const (
	// PropertyContentType is the message property carrying the serializer
	// content type.
	PropertyContentType = "Content-Type"

	errorBacklog = 100
)

// pulsarReporter implements Reporter by publishing spans to a Pulsar broker.
type pulsarReporter struct {
	e          chan error
	logged     chan struct{}
	mtx        sync.RWMutex
	closed     bool
	client     pulsar.Client
	producer   pulsar.Producer
	logger     logrus.FieldLogger
	topic      string
	keyed      bool
	serializer reporter.SpanSerializer
}

// ReporterOption sets a parameter for the pulsarReporter
type ReporterOption func(c *pulsarReporter)

// Logger sets the logger used to report errors in the collection
// process.
func Logger(logger logrus.FieldLogger) ReporterOption {
	return func(c *pulsarReporter) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Topic sets the pulsar topic to attach the reporter producer on.
func Topic(t string) ReporterOption {
	return func(c *pulsarReporter) {
		c.topic = t
	}
}

// Serializer sets the serialization function to use for sending span data to
// Zipkin.
func Serializer(serializer reporter.SpanSerializer) ReporterOption {
	return func(c *pulsarReporter) {
		if serializer != nil {
			c.serializer = serializer
		}
	}
}

// KeyByLocalService sets the message key to the service name of the span's
// local endpoint, so spans of one service land on the same partition.
func KeyByLocalService() ReporterOption {
	return func(c *pulsarReporter) {
		c.keyed = true
	}
}

// Client sets the Pulsar client to use for the reporter.
func Client(p pulsar.Client) ReporterOption {
	return func(c *pulsarReporter) {
		c.client = p
	}
}

// Producer sets the Pulsar producer to use for the reporter.
func Producer(p pulsar.Producer) ReporterOption {
	return func(c *pulsarReporter) {
		c.producer = p
	}
}

func (p *pulsarReporter) logErrors() {
	defer close(p.logged)
	for err := range p.e {
		p.logger.WithError(err).WithField("topic", p.topic).Error("failed to report span")
	}
}

// report queues err for logging, dropping it when the backlog is full or
// the reporter is closed.
func (p *pulsarReporter) report(err error) {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.e <- err:
	default:
	}
}

// NewReporter returns a new Pulsar-backed Reporter. address is the service
// URL of the cluster, e.g. "pulsar://localhost:6650".
func NewReporter(address string, options ...ReporterOption) (reporter.Reporter, error) {
	p := &pulsarReporter{
		e:          make(chan error, errorBacklog),
		logged:     make(chan struct{}),
		logger:     logrus.StandardLogger(),
		topic:      defaultPulsarTopic,
		serializer: reporter.JSONSerializer{},
	}

	for _, option := range options {
		option(p)
	}

	var err error
	if p.client == nil && p.producer == nil {
		p.client, err = pulsar.NewClient(pulsar.ClientOptions{
			URL: address,
		})
		if err != nil {
			return nil, err
		}
	}
	if p.producer == nil {
		p.producer, err = p.client.CreateProducer(pulsar.ProducerOptions{
			Topic: p.topic,
		})
		if err != nil {
			return nil, err
		}
	}

	go p.logErrors()

	return p, nil
}

func (p *pulsarReporter) Send(s model.SpanModel) {
	message, err := p.message(s)
	if err != nil {
		p.report(err)
		return
	}

	p.producer.SendAsync(context.Background(), message, func(_ pulsar.MessageID, _ *pulsar.ProducerMessage, err error) {
		if err != nil {
			p.report(fmt.Errorf("failed to produce msg: %w", err))
		}
	})
}

// message wraps s in a span list, as Zipkin expects.
func (p *pulsarReporter) message(s model.SpanModel) (*pulsar.ProducerMessage, error) {
	m, err := p.serializer.Serialize([]*model.SpanModel{&s})
	if err != nil {
		return nil, fmt.Errorf("failed when marshalling the span: %w", err)
	}

	message := &pulsar.ProducerMessage{
		Payload:    m,
		Properties: map[string]string{PropertyContentType: p.serializer.ContentType()},
	}
	if p.keyed {
		message.Key = s.LocalEndpoint.ServiceName()
	}
	return message, nil
}

// Close flushes pending messages and closes the producer, and the client
// when one is held. It returns once every queued error has been logged.
func (p *pulsarReporter) Close() error {
	err := p.producer.Flush()
	p.producer.Close()
	if p.client != nil {
		p.client.Close()
	}

	p.mtx.Lock()
	if !p.closed {
		p.closed = true
		close(p.e)
	}
	p.mtx.Unlock()
	<-p.logged
	return err
}
