package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/daybook-dev/daybook/internal/model"
)

// NightlyJob reconciles the previous business day for every provider in
// the catalogue. It satisfies the scheduler's Job interface.
type NightlyJob struct {
	Engine *Engine
	Log    zerolog.Logger
}

// Name returns the job name for scheduler logs.
func (j *NightlyJob) Name() string { return "nightly-reconcile" }

// Run reconciles yesterday per provider. A failure for one provider
// does not stop the others; the first error is returned at the end.
func (j *NightlyJob) Run() error {
	date := time.Now().AddDate(0, 0, -1).Format(model.DateFormat)
	ctx := context.Background()

	var firstErr error
	for _, p := range j.Engine.Providers().All() {
		_, err := j.Engine.RunReconciliation(ctx, date, p.Code)
		if err != nil {
			if errors.Is(err, ErrRunInProgress) {
				j.Log.Warn().Str("date", date).Str("provider", p.Code).Msg("Nightly run skipped, already in progress")
				continue
			}
			j.Log.Error().Err(err).Str("date", date).Str("provider", p.Code).Msg("Nightly reconciliation failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
	}
	return firstErr
}
