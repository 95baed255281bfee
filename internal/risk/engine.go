package risk

import (
	"context"
	"errors"
	"log/slog"

	"github.com/BradenHooton/riskgate/internal/models"
	"golang.org/x/sync/errgroup"
)

// Outcome is the admission decision for a login attempt
type Outcome string

const (
	OutcomeAllow       Outcome = "ALLOW"
	OutcomeMFARequired Outcome = "MFA_REQUIRED"
)

// MinBaseline is the number of prior observations below which no drift can be
// established and risk evaluation is skipped.
const MinBaseline = 2

// Decision is the full result of evaluating one attempt
type Decision struct {
	Outcome  Outcome
	Verdict  Verdict
	Features Features
	// Evaluated is false when the baseline was too short to score
	Evaluated bool
	// FailedClosed is set when the classifier could not answer and the
	// attempt was escalated for that reason
	FailedClosed bool
}

// Engine fuses the classifier with the four anomaly detectors. It holds no
// mutable state and may be shared by any number of goroutines.
type Engine struct {
	classifier Classifier
	logger     *slog.Logger
}

// NewEngine creates an Engine around a loaded classifier
func NewEngine(classifier Classifier, logger *slog.Logger) *Engine {
	if classifier == nil {
		classifier = Unavailable(nil)
	}
	return &Engine{
		classifier: classifier,
		logger:     logger,
	}
}

// Assess scores the last observation of history against the ones before it.
// The five signals are computed concurrently.
func (e *Engine) Assess(ctx context.Context, history models.LoginHistory, currAttempts int) (Verdict, Features, error) {
	baseline, current, ok := history.SplitCurrent()
	if !ok {
		return Verdict{}, Features{}, models.ErrBadRequest
	}

	features := ExtractFeatures(baseline, current, currAttempts)

	var v Verdict
	var g errgroup.Group
	g.Go(func() error {
		flag, err := e.classifier.Predict(features)
		v.ClassifierFlag = flag
		return err
	})
	g.Go(func() error {
		v.DistanceAnomaly = TupleAnomaly(baseline.Locations, current.Location)
		return nil
	})
	g.Go(func() error {
		v.DeviceAnomaly = StringAnomaly(baseline.Devices, current.Device)
		return nil
	})
	g.Go(func() error {
		v.TimeAnomaly = TimeAnomaly(baseline.LoginTimes, current.ObservedAt)
		return nil
	})
	g.Go(func() error {
		v.AttemptsAnomaly = AttemptsAnomaly(baseline.AttemptCounts, currAttempts)
		return nil
	})

	if err := g.Wait(); err != nil {
		return v, features, err
	}
	return v, features, nil
}

// EvaluateLogin decides whether an attempt whose password already checked out
// is admitted directly or escalated. history carries the attempt being judged
// as the last element of each observation sequence; currAttempts is the
// account's current failure streak. A password mismatch returns
// ErrInvalidCredentials and no decision.
func (e *Engine) EvaluateLogin(ctx context.Context, history models.LoginHistory, currAttempts int, passwordOK bool) (Decision, error) {
	if !passwordOK {
		return Decision{}, models.ErrInvalidCredentials
	}
	if history.Len() == 0 {
		return Decision{}, models.ErrBadRequest
	}

	d := Decision{Outcome: OutcomeMFARequired}

	if history.Len()-1 < MinBaseline {
		if currAttempts < models.LockoutThreshold {
			d.Outcome = OutcomeAllow
		}
		return d, nil
	}

	verdict, features, err := e.Assess(ctx, history, currAttempts)
	d.Evaluated = true
	d.Verdict = verdict
	d.Features = features
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			return Decision{}, err
		}
		e.logger.Warn("risk classifier failed, escalating to MFA", slog.Any("error", err))
		d.FailedClosed = true
		return d, nil
	}

	if !verdict.Unsafe() && currAttempts < models.LockoutThreshold {
		d.Outcome = OutcomeAllow
	}
	return d, nil
}
