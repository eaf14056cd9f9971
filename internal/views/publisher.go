package views

import (
	"strconv"

	"github.com/docengine/itdoc/internal/domain"
)

// ProgressPublisher is the narrow capability a view processor needs from
// the Progress Broker: a best-effort, non-blocking milestone push
// (spec.md §4.6, §4.9).
type ProgressPublisher interface {
	Publish(event domain.ProgressEvent)
}

// NoopPublisher discards every event; used in tests and standalone calls.
type NoopPublisher struct{}

func (NoopPublisher) Publish(domain.ProgressEvent) {}

// StepLabel formats the "step i/N – <title>" progress label.
func StepLabel(i, n int, title string) string {
	return "step " + strconv.Itoa(i) + "/" + strconv.Itoa(n) + " – " + title
}
