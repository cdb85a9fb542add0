/*
Package log implements a reporter to send spans in V2 JSON format to a logrus
Logger. Each reported span is written as a single line holding a JSON array,
which is the shape the Zipkin collectors ingest.
*/
package log

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/openzipkin/zipkin-go-endpoint/model"
	"github.com/openzipkin/zipkin-go-endpoint/reporter"
)

// configuration keys read by NewReporterFromConfig
const (
	KeyLevel     = "log.level"
	KeyDir       = "log.dir"
	KeyTraceFile = "log.trace.file"
)

type logReporter struct {
	logger     logrus.FieldLogger
	serializer reporter.SpanSerializer
	closer     io.Closer
}

// ReporterOption sets a parameter for the log reporter.
type ReporterOption func(r *logReporter)

// Logger sets the logger the spans are written to.
func Logger(logger logrus.FieldLogger) ReporterOption {
	return func(r *logReporter) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Serializer sets the serialization function to use for the span lines.
func Serializer(serializer reporter.SpanSerializer) ReporterOption {
	return func(r *logReporter) {
		if serializer != nil {
			r.serializer = serializer
		}
	}
}

// SpanFormatter is a logrus.Formatter which writes the bare message of an
// entry, so the log holds nothing but serialized spans.
type SpanFormatter struct{}

// Format implements logrus.Formatter.
func (f *SpanFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := make([]byte, 0, len(entry.Message)+1)
	b = append(b, entry.Message...)
	return append(b, '\n'), nil
}

// NewReporter returns a new log reporter. Without a Logger option spans are
// written to stderr.
func NewReporter(options ...ReporterOption) reporter.Reporter {
	r := &logReporter{
		logger: &logrus.Logger{
			Out:       os.Stderr,
			Formatter: new(SpanFormatter),
			Hooks:     make(logrus.LevelHooks),
			Level:     logrus.InfoLevel,
		},
		serializer: reporter.JSONSerializer{},
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// NewReporterFromConfig returns a log reporter configured from v. The level
// is read from "log.level" and defaults to info. Spans are appended to the
// file "log.trace.file" inside directory "log.dir"; when no file is
// configured they go to stderr.
func NewReporterFromConfig(v *viper.Viper, options ...ReporterOption) (reporter.Reporter, error) {
	v.SetDefault(KeyLevel, logrus.InfoLevel.String())

	level, err := logrus.ParseLevel(v.GetString(KeyLevel))
	if err != nil {
		return nil, err
	}

	var (
		out    io.Writer = os.Stderr
		closer io.Closer
	)
	if file := v.GetString(KeyTraceFile); file != "" {
		f, err := os.OpenFile(filepath.Join(v.GetString(KeyDir), file), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
		if err != nil {
			return nil, err
		}
		out, closer = f, f
	}

	logger := &logrus.Logger{
		Out:       out,
		Formatter: new(SpanFormatter),
		Hooks:     make(logrus.LevelHooks),
		Level:     level,
	}

	r := NewReporter(append([]ReporterOption{Logger(logger)}, options...)...).(*logReporter)
	r.closer = closer
	return r, nil
}

// Send writes s to the log as a one element span list.
func (r *logReporter) Send(s model.SpanModel) {
	b, err := r.serializer.Serialize([]*model.SpanModel{&s})
	if err != nil {
		r.logger.WithError(err).WithField("span", s.ID.String()).Error("failed to serialize span")
		return
	}
	r.logger.Info(string(b))
}

// Close closes the trace file, if the reporter opened one.
func (r *logReporter) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
