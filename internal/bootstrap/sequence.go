// Package bootstrap resolves every startup resource once and reports the
// combined result.
package bootstrap

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/acquire"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/browser"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/config"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/connectivity"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/metrics"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/mode"
	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/notify"
)

// ErrFatal means a resolver decided the process must stop.
var ErrFatal = errors.New("bootstrap failed")

// ReportKind is the notification kind for reports.
const ReportKind = "bootstrap.report"

// DatabaseResolver is satisfied by *connectivity.Resolver.
type DatabaseResolver interface {
	Resolve(ctx context.Context) acquire.Outcome[connectivity.Handle]
}

// BrowserResolver is satisfied by *browser.Resolver.
type BrowserResolver interface {
	Resolve(ctx context.Context) acquire.Outcome[string]
}

// Report is the serializable result of one bootstrap.
type Report struct {
	ID         string                     `json:"id"`
	Deployment string                     `json:"deployment"`
	StartedAt  time.Time                  `json:"started_at"`
	FinishedAt time.Time                  `json:"finished_at"`
	Degraded   bool                       `json:"degraded"`
	Mode       mode.Snapshot              `json:"mode"`
	Resources  map[string]acquire.Summary `json:"resources"`
	ExitCode   int                        `json:"exit_code"`
}

// Result carries the report and the acquired resources.
type Result struct {
	Report   Report
	Database acquire.Outcome[connectivity.Handle]
	Browser  acquire.Outcome[string]
}

// Sequence runs the database resolver and then the browser resolver. Either
// may be nil to skip that resource.
type Sequence struct {
	Env       config.Environment
	State     *mode.State
	Database  DatabaseResolver
	Browser   BrowserResolver
	Publisher notify.Publisher
	Logger    *zap.Logger

	now func() time.Time
}

// Run resolves the resources in order. It returns ErrFatal, with a populated
// result, when the database outcome is fatal; the browser is not attempted in
// that case.
func (s *Sequence) Run(ctx context.Context) (Result, error) {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := s.now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	report := Report{
		ID:         id.String(),
		Deployment: string(s.Env.Mode),
		StartedAt:  now(),
		Resources:  map[string]acquire.Summary{},
	}
	state := s.State
	if state == nil {
		state = mode.New(s.Env.DegradedModeRequested)
	}
	if state.OperatorOptIn() {
		metrics.SetDegraded(true)
		logger.Warn("DEGRADED MODE requested by operator")
	}

	var result Result
	if s.Database != nil {
		result.Database = s.Database.Resolve(ctx)
		report.Resources[connectivity.Resource] = result.Database.Summary()
		if result.Database.Kind == acquire.OutcomeFatal {
			report.ExitCode = 1
		}
	}
	if report.ExitCode == 0 && s.Browser != nil {
		result.Browser = s.Browser.Resolve(ctx)
		report.Resources[browser.Resource] = result.Browser.Summary()
	}

	report.Mode = state.Snapshot()
	report.Degraded = report.Mode.Degraded
	report.FinishedAt = now()
	result.Report = report

	logger.Info("bootstrap complete",
		zap.String("id", report.ID),
		zap.Bool("degraded", report.Degraded),
		zap.Int("exit_code", report.ExitCode),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	s.publish(ctx, logger, report)

	if report.ExitCode != 0 {
		return result, ErrFatal
	}
	return result, nil
}

func (s *Sequence) publish(ctx context.Context, logger *zap.Logger, report Report) {
	if s.Publisher == nil {
		return
	}
	id, err := s.Publisher.Publish(ctx, ReportKind, report)
	if err != nil {
		logger.Warn("could not publish bootstrap report", zap.Error(err))
		return
	}
	logger.Debug("bootstrap report published", zap.String("message_id", id))
}
