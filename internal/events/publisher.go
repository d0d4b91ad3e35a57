package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"telemetry-pipeline/internal/pipeline"
)

// Defaults for the run event stream.
const (
	DefaultStream  = "PIPELINE_RUNS"
	DefaultSubject = "pipeline.runs"
)

// JetStreamPublisher is the part of nats.JetStreamContext the publisher uses.
type JetStreamPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

// RunEvent is the message published after every run.
type RunEvent struct {
	RunID         string    `json:"run_id"`
	Status        string    `json:"status"`
	FailedStage   string    `json:"failed_stage,omitempty"`
	Devices       int       `json:"device_count"`
	Rows          int       `json:"rows_prepared"`
	Skipped       int       `json:"rows_skipped"`
	Inserted      int       `json:"rows_loaded"`
	VerifiedCount int64     `json:"verified_count"`
	Error         string    `json:"error,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// NewRunEvent builds the event for report.
func NewRunEvent(report pipeline.Report) RunEvent {
	ev := RunEvent{
		RunID:         report.RunID.String(),
		Status:        report.Status(),
		Devices:       report.Devices,
		Rows:          report.Rows,
		Skipped:       len(report.Skipped),
		Inserted:      report.Inserted,
		VerifiedCount: report.VerifiedCount,
		StartedAt:     report.StartedAt,
		FinishedAt:    report.FinishedAt,
	}
	if report.Err != nil {
		ev.FailedStage = string(report.FailedStage)
		ev.Error = report.Err.Error()
	}
	return ev
}

// Publisher announces finished runs on JetStream as
// <subject>.succeeded or <subject>.failed.
type Publisher struct {
	js      JetStreamPublisher
	stream  string
	subject string
	logger  logrus.FieldLogger

	mu      sync.Mutex
	ensured bool
}

// NewPublisher creates a Publisher. Empty stream or subject use the defaults.
func NewPublisher(js JetStreamPublisher, stream, subject string, logger logrus.FieldLogger) *Publisher {
	if stream == "" {
		stream = DefaultStream
	}
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{
		js:      js,
		stream:  stream,
		subject: subject,
		logger:  logger.WithField("component", "run_events"),
	}
}

// SubjectFor returns the subject a report is published on.
func (p *Publisher) SubjectFor(report pipeline.Report) string {
	if report.OK() {
		return p.subject + ".succeeded"
	}
	return p.subject + ".failed"
}

// ensureStream creates the stream the first time it is found missing.
func (p *Publisher) ensureStream() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ensured {
		return nil
	}

	_, err := p.js.StreamInfo(p.stream)
	if err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return fmt.Errorf("failed to look up NATS stream %s: %w", p.stream, err)
		}
		p.logger.WithField("stream", p.stream).Info("Stream not found, creating it")
		_, err = p.js.AddStream(&nats.StreamConfig{
			Name:     p.stream,
			Subjects: []string{p.subject + ".>"},
			Storage:  nats.FileStorage,
		})
		if err != nil {
			return fmt.Errorf("failed to create NATS stream %s: %w", p.stream, err)
		}
	}
	p.ensured = true
	return nil
}

// Notify publishes the event for report.
func (p *Publisher) Notify(report pipeline.Report) error {
	if err := p.ensureStream(); err != nil {
		return err
	}

	payload, err := json.Marshal(NewRunEvent(report))
	if err != nil {
		return fmt.Errorf("failed to marshal run event %s: %w", report.RunID, err)
	}

	subject := p.SubjectFor(report)
	ack, err := p.js.Publish(subject, payload, nats.MsgId(report.RunID.String()))
	if err != nil {
		return fmt.Errorf("failed to publish run event %s to subject %s: %w", report.RunID, subject, err)
	}
	p.logger.WithFields(logrus.Fields{
		"run_id":   report.RunID.String(),
		"subject":  subject,
		"stream":   ack.Stream,
		"sequence": ack.Sequence,
	}).Info("Published run event")
	return nil
}

// Observe implements pipeline.Observer.
func (p *Publisher) Observe(_ context.Context, report pipeline.Report) error {
	return p.Notify(report)
}
