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
Package amqp implements a RabbitMq reporter to send spans to a Rabbit server/cluster.
*/
package amqp

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/openzipkin/zipkin-go-endpoint/model"
	"github.com/openzipkin/zipkin-go-endpoint/reporter"
)

// defaultRmqRoutingKey/Exchange/Kind sets the standard RabbitMQ queue our Reporter will publish on.
const (
	defaultRmqRoutingKey  = "zipkin"
	defaultRmqExchange    = "zipkin"
	defaultExchangeKind   = "direct"
	defaultPublishTimeout = 5 * time.Second
	errorBacklog          = 100
)

// rmqReporter implements Reporter by publishing spans to a RabbitMQ exchange
type rmqReporter struct {
	e              chan error
	channel        *amqp.Channel
	conn           *amqp.Connection
	exchange       string
	queue          string
	publishTimeout time.Duration
	serializer     reporter.SpanSerializer
	logger         logrus.FieldLogger
}

// ReporterOption sets a parameter for the rmqReporter
type ReporterOption func(c *rmqReporter)

// Logger sets the logger used to report errors in the collection
// process.
func Logger(logger logrus.FieldLogger) ReporterOption {
	return func(c *rmqReporter) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Exchange sets the Exchange used to send messages (
// see https://github.com/openzipkin/zipkin/tree/master/zipkin-collector/rabbitmq
// if want to change default routing key or exchange
func Exchange(exchange string) ReporterOption {
	return func(c *rmqReporter) {
		c.exchange = exchange
	}
}

// Queue sets the Queue used to send messages
func Queue(queue string) ReporterOption {
	return func(c *rmqReporter) {
		c.queue = queue
	}
}

// Channel sets the Channel used to send messages
func Channel(ch *amqp.Channel) ReporterOption {
	return func(c *rmqReporter) {
		c.channel = ch
	}
}

// Connection sets the Connection used to send messages
func Connection(conn *amqp.Connection) ReporterOption {
	return func(c *rmqReporter) {
		c.conn = conn
	}
}

// PublishTimeout bounds the time a single publish may block.
func PublishTimeout(d time.Duration) ReporterOption {
	return func(c *rmqReporter) {
		if d > 0 {
			c.publishTimeout = d
		}
	}
}

// Serializer sets the serialization function to use for sending span data to
// Zipkin.
func Serializer(serializer reporter.SpanSerializer) ReporterOption {
	return func(c *rmqReporter) {
		if serializer != nil {
			c.serializer = serializer
		}
	}
}

// NewReporter returns a new RabbitMq-backed Reporter. address should be as described here: https://www.rabbitmq.com/uri-spec.html
func NewReporter(address string, options ...ReporterOption) (reporter.Reporter, error) {
	r := newReporter(options...)

	checks := []func() error{
		r.queueVerify,
		r.exchangeVerify,
		r.queueBindVerify,
	}

	var err error

	if r.conn == nil {
		r.conn, err = amqp.Dial(address)
		if err != nil {
			return nil, err
		}
	}

	if r.channel == nil {
		r.channel, err = r.conn.Channel()
		if err != nil {
			return nil, err
		}
	}

	for i := 0; i < len(checks); i++ {
		if err := checks[i](); err != nil {
			return nil, err
		}
	}

	go r.logErrors()

	return r, nil
}

func newReporter(options ...ReporterOption) *rmqReporter {
	r := &rmqReporter{
		logger:         logrus.StandardLogger(),
		queue:          defaultRmqRoutingKey,
		exchange:       defaultRmqExchange,
		publishTimeout: defaultPublishTimeout,
		serializer:     reporter.JSONSerializer{},
		e:              make(chan error, errorBacklog),
	}

	for _, option := range options {
		option(r)
	}
	return r
}

func (r *rmqReporter) logErrors() {
	for err := range r.e {
		r.logger.WithError(err).WithField("exchange", r.exchange).Error("failed to report span")
	}
}

// report queues err for logging, dropping it when the backlog is full.
func (r *rmqReporter) report(err error) {
	select {
	case r.e <- err:
	default:
	}
}

func (r *rmqReporter) Send(s model.SpanModel) {
	msg, err := r.publishing(s)
	if err != nil {
		r.report(err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.publishTimeout)
	defer cancel()

	err = r.channel.PublishWithContext(ctx, r.exchange, r.queue, false, false, msg)
	if err != nil {
		r.report(fmt.Errorf("failed when publishing the span: %w", err))
	}
}

// publishing wraps s in a span list, as Zipkin expects.
func (r *rmqReporter) publishing(s model.SpanModel) (amqp.Publishing, error) {
	m, err := r.serializer.Serialize([]*model.SpanModel{&s})
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed when marshalling the span: %w", err)
	}
	return amqp.Publishing{
		ContentType: r.serializer.ContentType(),
		Body:        m,
	}, nil
}

func (r *rmqReporter) queueBindVerify() error {
	return r.channel.QueueBind(
		r.queue,
		r.queue,
		r.exchange,
		false,
		nil)
}

func (r *rmqReporter) exchangeVerify() error {
	return r.channel.ExchangeDeclare(
		r.exchange,
		defaultExchangeKind,
		true,
		false,
		false,
		false,
		nil,
	)
}

func (r *rmqReporter) queueVerify() error {
	_, err := r.channel.QueueDeclare(
		r.queue,
		true,
		false,
		false,
		false,
		nil,
	)
	return err
}

func (r *rmqReporter) Close() error {
	defer close(r.e)

	if err := r.channel.Close(); err != nil {
		return err
	}
	return r.conn.Close()
}
