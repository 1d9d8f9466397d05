package sales

import (
	"github.com/rs/zerolog/log"
)

// Status is one progress update from a pipeline run
type Status struct {
	Stage      string
	Message    string
	Done       int
	Total      int
	TemplateID string
}

// StatusReporter receives progress updates from pipeline runs. Implementations
// must be safe for concurrent use.
type StatusReporter interface {
	Report(status Status)
}

// ReporterFunc adapts a function to StatusReporter
type ReporterFunc func(Status)

func (f ReporterFunc) Report(status Status) { f(status) }

// LogReporter writes status updates to the global logger at debug level
type LogReporter struct{}

func (LogReporter) Report(status Status) {
	event := log.Debug().Str("stage", status.Stage).Str("template_id", status.TemplateID)
	if status.Total > 0 {
		event = event.Int("done", status.Done).Int("total", status.Total)
	}
	event.Msg(status.Message)
}

type nopReporter struct{}

func (nopReporter) Report(Status) {}
