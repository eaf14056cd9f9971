// Package queue durably fans document-processing jobs out to workers over
// NATS, mirroring the teacher's StartConsumer/DLQ/retry-header pattern
// (spec.md §5).
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/docengine/itdoc/internal/domain"
)

const (
	// JobSubject carries primary processing jobs: extract → classify →
	// process the primary view.
	JobSubject = "itdoc.process"
	// SecondarySubject carries a single secondary-view job, published only
	// after the primary view has committed (spec.md §4.7 step 3-4).
	SecondarySubject = "itdoc.process.secondary"
	// DLQSubject receives jobs that exhausted MaxRetries.
	DLQSubject = "itdoc.process.dlq"
	// MaxRetries before a job is sent to the DLQ instead of reprocessed.
	MaxRetries = 3

	retryCountHeader = "X-Retry-Count"
)

// Job is the unit of work a worker consumes from JobSubject.
type Job struct {
	DocumentID   string   `json:"document_id"`
	TaskID       string   `json:"task_id"`
	EnabledViews []string `json:"enabled_views,omitempty"`
}

// SecondaryJob is the unit of work for a single secondary view, enqueued
// once the primary view has already committed.
type SecondaryJob struct {
	DocumentID string `json:"document_id"`
	TaskID     string `json:"task_id"`
	View       string `json:"view"`
}

type dlqMessage struct {
	Job     Job    `json:"job"`
	Error   string `json:"error"`
	Retries int    `json:"retries"`
}

// Dispatcher adapts a *nats.Conn to engine.SecondaryDispatcher, publishing
// one SecondaryJob per secondary view instead of running it in-process.
type Dispatcher struct {
	NC *nats.Conn
}

func (d Dispatcher) Dispatch(documentID, taskID string, view domain.View) error {
	return PublishSecondary(d.NC, SecondaryJob{DocumentID: documentID, TaskID: taskID, View: string(view)})
}

// Publish enqueues a primary job.
func Publish(nc *nats.Conn, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return nc.Publish(JobSubject, data)
}

// PublishSecondary enqueues a single secondary-view job.
func PublishSecondary(nc *nats.Conn, job SecondaryJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal secondary job: %w", err)
	}
	return nc.Publish(SecondarySubject, data)
}

// Handler processes one job; a non-nil error triggers the retry/DLQ path.
type Handler func(ctx context.Context, job Job) error

// StartConsumer subscribes to JobSubject and handles each job at most
// MaxRetries times: a failed attempt is republished with an incremented
// X-Retry-Count header, and the failure that reaches MaxRetries routes the
// job to the DLQ instead (spec.md §5, §7).
func StartConsumer(nc *nats.Conn, log *slog.Logger, handle Handler) (*nats.Subscription, error) {
	if log == nil {
		log = slog.Default()
	}
	return nc.Subscribe(JobSubject, func(msg *nats.Msg) {
		var job Job
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			log.Error("queue: unmarshal job failed", "error", err)
			return
		}

		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get(retryCountHeader); v != "" {
				fmt.Sscanf(v, "%d", &retries)
			}
		}

		if err := handle(context.Background(), job); err != nil {
			retries++
			log.Error("queue: job failed", "error", err, "document_id", job.DocumentID, "retry", retries)

			if retries >= MaxRetries {
				publishDLQ(nc, log, job, err, retries)
			} else {
				republish(nc, log, msg, retries)
			}
			return
		}
		log.Info("queue: job succeeded", "document_id", job.DocumentID)
	})
}

// SecondaryHandler processes one secondary-view job.
type SecondaryHandler func(ctx context.Context, job SecondaryJob) error

// StartSecondaryConsumer subscribes to SecondarySubject. A secondary
// failure is logged and does not retry — it is isolated per spec.md
// §4.7's independence invariant and surfaces as a per-view failed status
// instead.
func StartSecondaryConsumer(nc *nats.Conn, log *slog.Logger, handle SecondaryHandler) (*nats.Subscription, error) {
	if log == nil {
		log = slog.Default()
	}
	return nc.Subscribe(SecondarySubject, func(msg *nats.Msg) {
		var job SecondaryJob
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			log.Error("queue: unmarshal secondary job failed", "error", err)
			return
		}
		if err := handle(context.Background(), job); err != nil {
			log.Error("queue: secondary job failed", "error", err, "document_id", job.DocumentID, "view", job.View)
		}
	})
}

func publishDLQ(nc *nats.Conn, log *slog.Logger, job Job, cause error, retries int) {
	dlq := dlqMessage{Job: job, Error: cause.Error(), Retries: retries}
	data, err := json.Marshal(dlq)
	if err != nil {
		log.Error("queue: marshal DLQ message failed", "error", err)
		return
	}
	if err := nc.Publish(DLQSubject, data); err != nil {
		log.Error("queue: DLQ publish failed", "error", err)
	}
}

func republish(nc *nats.Conn, log *slog.Logger, orig *nats.Msg, retries int) {
	retryMsg := nats.NewMsg(JobSubject)
	retryMsg.Data = orig.Data
	retryMsg.Header = nats.Header{}
	retryMsg.Header.Set(retryCountHeader, fmt.Sprintf("%d", retries))
	if err := nc.PublishMsg(retryMsg); err != nil {
		log.Error("queue: retry publish failed", "error", err)
	}
}
