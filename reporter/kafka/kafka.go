// Copyright 2019 The OpenZipkin Authors
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
Package kafka implements a Kafka reporter to send spans to a Kafka server/cluster.

Spans are buffered and published in batches. With KeyByLocalService each
batch is split per local service name, and every record is keyed by that
name so the spans of one service share a partition.
*/
package kafka

import (
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"github.com/openzipkin/zipkin-go-endpoint/model"
	"github.com/openzipkin/zipkin-go-endpoint/reporter"
)

// The default topic for zipkin-collector/kafka is "zipkin", see:
// https://github.com/openzipkin/zipkin/tree/master/zipkin-collector/kafka
const (
	defaultKafkaTopic    = "zipkin"
	defaultBatchInterval = time.Second
	defaultBatchSize     = 100
	defaultMaxBacklog    = 1000
)

// HeaderContentType is the record header carrying the serializer content type.
const HeaderContentType = "Content-Type"

// kafkaReporter implements Reporter by publishing spans to a Kafka
// broker. Pending spans are owned by the run goroutine; publish receives
// complete batches over the batches channel.
type kafkaReporter struct {
	producer      sarama.AsyncProducer
	logger        logrus.FieldLogger
	topic         string
	serializer    reporter.SpanSerializer
	key           func(s *model.SpanModel) string
	batchInterval time.Duration
	batchSize     int
	maxBacklog    int
	spanC         chan *model.SpanModel
	batches       chan []*model.SpanModel
	quit          chan struct{}
	done          chan struct{}
}

// ReporterOption sets a parameter for the kafkaReporter
type ReporterOption func(r *kafkaReporter)

// Logger sets the logger used to report errors in the collection
// process.
func Logger(logger logrus.FieldLogger) ReporterOption {
	return func(r *kafkaReporter) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Producer sets the producer used to produce to Kafka.
func Producer(p sarama.AsyncProducer) ReporterOption {
	return func(r *kafkaReporter) { r.producer = p }
}

// BatchSize sets the number of pending spans that triggers a publish. The
// default is 100.
func BatchSize(n int) ReporterOption {
	return func(r *kafkaReporter) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// BatchInterval sets how long spans may stay pending before they are
// published. The default is 1 second.
func BatchInterval(d time.Duration) ReporterOption {
	return func(r *kafkaReporter) {
		if d > 0 {
			r.batchInterval = d
		}
	}
}

// MaxBacklog caps the number of pending spans. The oldest spans are dropped
// once the cap is exceeded.
func MaxBacklog(n int) ReporterOption {
	return func(r *kafkaReporter) {
		if n > 0 {
			r.maxBacklog = n
		}
	}
}

// Topic sets the kafka topic to attach the reporter producer on.
func Topic(t string) ReporterOption {
	return func(r *kafkaReporter) { r.topic = t }
}

// Serializer sets the serialization function to use for sending span data to
// Zipkin.
func Serializer(serializer reporter.SpanSerializer) ReporterOption {
	return func(r *kafkaReporter) {
		if serializer != nil {
			r.serializer = serializer
		}
	}
}

// KeyByLocalService keys every record by the service name of its spans'
// local endpoint. Spans without a local service name are published
// unkeyed.
func KeyByLocalService() ReporterOption {
	return func(r *kafkaReporter) {
		r.key = func(s *model.SpanModel) string {
			return s.LocalEndpoint.ServiceName()
		}
	}
}

// NewReporter returns a new Kafka-backed Reporter. address should be a slice of
// TCP endpoints of the form "host:port".
func NewReporter(address []string, options ...ReporterOption) (reporter.Reporter, error) {
	r := &kafkaReporter{
		logger:        logrus.StandardLogger(),
		topic:         defaultKafkaTopic,
		serializer:    reporter.JSONSerializer{},
		batchInterval: defaultBatchInterval,
		batchSize:     defaultBatchSize,
		maxBacklog:    defaultMaxBacklog,
		spanC:         make(chan *model.SpanModel),
		batches:       make(chan []*model.SpanModel, 1),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
	}

	for _, option := range options {
		option(r)
	}
	if r.producer == nil {
		p, err := sarama.NewAsyncProducer(address, nil)
		if err != nil {
			return nil, err
		}
		r.producer = p
	}

	go r.run()
	go r.publishLoop()
	go r.logErrors()

	return r, nil
}

func (r *kafkaReporter) Send(s model.SpanModel) {
	r.spanC <- &s
}

// Close publishes the pending spans and closes the producer.
func (r *kafkaReporter) Close() error {
	close(r.quit)
	<-r.done
	return r.producer.Close()
}

func (r *kafkaReporter) logErrors() {
	for pe := range r.producer.Errors() {
		r.logger.WithError(pe.Err).WithField("topic", pe.Msg.Topic).Error("failed to produce msg")
	}
}

func (r *kafkaReporter) run() {
	defer close(r.batches)

	var pending []*model.SpanModel
	ticker := time.NewTicker(r.batchInterval)
	defer ticker.Stop()

	for {
		select {
		case s := <-r.spanC:
			pending = r.buffer(pending, s)
			if len(pending) >= r.batchSize {
				pending = r.handOff(pending)
			}
		case <-ticker.C:
			pending = r.handOff(pending)
		case <-r.quit:
			if len(pending) > 0 {
				r.batches <- pending
			}
			return
		}
	}
}

// buffer appends s to pending and trims the backlog to maxBacklog.
func (r *kafkaReporter) buffer(pending []*model.SpanModel, s *model.SpanModel) []*model.SpanModel {
	pending = append(pending, s)
	if over := len(pending) - r.maxBacklog; over > 0 {
		r.logger.WithField("disposed", over).Warn("backlog too long, disposing spans")
		pending = pending[over:]
	}
	return pending
}

// handOff passes pending to publishLoop unless a batch is still waiting
// there, in which case the spans stay pending.
func (r *kafkaReporter) handOff(pending []*model.SpanModel) []*model.SpanModel {
	if len(pending) == 0 {
		return pending
	}
	select {
	case r.batches <- pending:
		return nil
	default:
		return pending
	}
}

func (r *kafkaReporter) publishLoop() {
	defer close(r.done)
	for batch := range r.batches {
		for _, group := range r.group(batch) {
			r.publish(group.key, group.spans)
		}
	}
}

type keyedSpans struct {
	key   string
	spans []*model.SpanModel
}

// group splits batch by record key, keeping the order in which keys first
// appear and the order of spans within a key.
func (r *kafkaReporter) group(batch []*model.SpanModel) []keyedSpans {
	if r.key == nil {
		return []keyedSpans{{spans: batch}}
	}

	var (
		groups []keyedSpans
		index  = make(map[string]int)
	)
	for _, s := range batch {
		k := r.key(s)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, keyedSpans{key: k})
		}
		groups[i].spans = append(groups[i].spans, s)
	}
	return groups
}

func (r *kafkaReporter) publish(key string, spans []*model.SpanModel) {
	// the serializer wraps the spans in a list, as Zipkin expects
	m, err := r.serializer.Serialize(spans)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"spans": len(spans),
			"key":   key,
		}).Error("failed to serialize spans")
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: r.topic,
		Value: sarama.ByteEncoder(m),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderContentType), Value: []byte(r.serializer.ContentType())},
		},
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	r.producer.Input() <- msg
}
