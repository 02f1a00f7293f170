// Package report forwards failed ingestion jobs to Sentry.
package report

import (
	"github.com/getsentry/sentry-go"

	"github.com/trunov/assethub/internal/entities"
)

type Sentry struct {
	hub *sentry.Hub
}

// NewSentry reports through hub, or the current hub when nil.
func NewSentry(hub *sentry.Hub) *Sentry {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &Sentry{hub: hub}
}

// ReportJob captures failed jobs. Done and skipped jobs are ignored.
func (s *Sentry) ReportJob(res entities.JobResult) {
	if res.Status != entities.StatusFailed || res.Err == nil {
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", "ingest")
		scope.SetTag("state", res.State)
		scope.SetTag("asset_key", res.AssetKey)
		scope.SetContext("job", sentry.Context{
			"job_id": res.JobID,
			"file":   res.File,
		})
		s.hub.CaptureException(res.Err)
	})
}
