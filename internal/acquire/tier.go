package acquire

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/metrics"
)

// Tier is one named strategy for acquiring a resource of type R.
type Tier[R any] struct {
	Name string
	// Probe returns the resource or an error. Errors that are not *TierFailure
	// are recorded as KindProbeError.
	Probe func(ctx context.Context) (R, error)
}

// Result is the raw output of a pass before policy is applied.
type Result[R any] struct {
	Resource R
	Tier     string
	Acquired bool
	Failures []*TierFailure
}

// LastFailure returns the failure of the last tier tried, or nil.
func (r Result[R]) LastFailure() *TierFailure {
	if len(r.Failures) == 0 {
		return nil
	}
	return r.Failures[len(r.Failures)-1]
}

// Run executes tiers in order and returns at the first success. Every tier is
// tried at most once. Failures, including panics and context cancellation,
// are captured in the result and never returned as errors.
func Run[R any](ctx context.Context, resource string, tiers []Tier[R], logger *zap.Logger) Result[R] {
	if logger == nil {
		logger = zap.NewNop()
	}
	var result Result[R]
	for i, tier := range tiers {
		if err := ctx.Err(); err != nil {
			for _, rest := range tiers[i:] {
				f := ProbeFailed("resolution canceled", err)
				f.Tier = rest.Name
				result.Failures = append(result.Failures, f)
				metrics.ObserveTier(resource, rest.Name, f.Kind.String(), 0)
			}
			logger.Warn("acquisition canceled", zap.String("resource", resource), zap.Error(err))
			return result
		}

		start := time.Now()
		res, failure := runTier(ctx, tier)
		elapsed := time.Since(start)

		if failure == nil {
			metrics.ObserveTier(resource, tier.Name, "acquired", elapsed)
			logger.Debug("tier acquired resource",
				zap.String("resource", resource),
				zap.String("tier", tier.Name),
				zap.Duration("elapsed", elapsed),
			)
			result.Resource = res
			result.Tier = tier.Name
			result.Acquired = true
			return result
		}

		metrics.ObserveTier(resource, tier.Name, failure.Kind.String(), elapsed)
		fields := []zap.Field{
			zap.String("resource", resource),
			zap.String("tier", tier.Name),
			zap.String("kind", failure.Kind.String()),
			zap.String("reason", failure.Reason),
			zap.Duration("elapsed", elapsed),
		}
		if failure.Err != nil {
			fields = append(fields, zap.Error(failure.Err))
		}
		if failure.Kind == KindNotConfigured {
			logger.Info("tier skipped", fields...)
		} else {
			logger.Warn("tier failed", fields...)
		}
		result.Failures = append(result.Failures, failure)
	}
	return result
}

func runTier[R any](ctx context.Context, tier Tier[R]) (res R, failure *TierFailure) {
	if tier.Probe == nil {
		f := NotConfigured("tier has no probe")
		f.Tier = tier.Name
		return res, f
	}
	defer func() {
		if p := recover(); p != nil {
			var zero R
			res = zero
			failure = ProbeFailed("probe panicked", fmt.Errorf("panic: %v", p))
			failure.Tier = tier.Name
		}
	}()

	res, err := tier.Probe(ctx)
	if err == nil {
		return res, nil
	}
	var zero R
	var tf *TierFailure
	if !errors.As(err, &tf) {
		tf = ProbeFailed(err.Error(), err)
	}
	if tf.Tier == "" {
		tf.Tier = tier.Name
	}
	return zero, tf
}
