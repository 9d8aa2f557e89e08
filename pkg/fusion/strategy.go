package fusion

import (
	"context"
	"errors"

	tabwatterrors "github.com/grovetools/tabwatt/errors"
	"github.com/grovetools/tabwatt/pkg/retry"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNoData is returned by a strategy that ran but had nothing to offer
	// yet. Strategies marked RetryEmpty are asked again under the policy.
	ErrNoData = errors.New("no data")
	// ErrNotApplicable means the target lacks what the strategy needs, such
	// as a tab id or URL. It is never retried.
	ErrNotApplicable = errors.New("not applicable")
)

// Target is what the caller knows about the tab being resolved.
type Target struct {
	TabID    int
	URL      string
	Title    string
	DOMNodes int // zero when unknown
}

// Strategy is one step of the resolution cascade.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, t Target) (*DisplayData, error)
}

// StrategyFunc adapts a function to Strategy. RetryEmpty marks steps backed
// by the daemon, whose state may still be filling in after a restart.
type StrategyFunc struct {
	Label      string
	Fn         func(ctx context.Context, t Target) (*DisplayData, error)
	RetryEmpty bool
}

func (s StrategyFunc) Name() string { return s.Label }

func (s StrategyFunc) RetriesEmpty() bool { return s.RetryEmpty }

func (s StrategyFunc) Resolve(ctx context.Context, t Target) (*DisplayData, error) {
	return s.Fn(ctx, t)
}

// Retryable reports whether a strategy error is worth another attempt:
// transport failures and transient daemon errors are, empty results and
// rejected requests are not.
func Retryable(err error) bool {
	if errors.Is(err, ErrNoData) || errors.Is(err, ErrNotApplicable) {
		return false
	}
	var twErr *tabwatterrors.TabwattError
	if errors.As(err, &twErr) {
		return tabwatterrors.IsTransient(err)
	}
	return true
}

// retryingEmpty also retries ErrNoData.
func retryingEmpty(err error) bool {
	return errors.Is(err, ErrNoData) || Retryable(err)
}

func policyFor(base retry.Policy, s Strategy) retry.Policy {
	base.Retryable = Retryable
	if e, ok := s.(interface{ RetriesEmpty() bool }); ok && e.RetriesEmpty() {
		base.Retryable = retryingEmpty
	}
	return base
}

// FirstSuccess runs the strategies in order, each under policy, and returns
// the first result. It returns nil when every strategy came up empty.
func FirstSuccess(ctx context.Context, policy retry.Policy, strategies []Strategy, t Target, logger *logrus.Entry) *DisplayData {
	for _, s := range strategies {
		if ctx.Err() != nil {
			return nil
		}
		d, err := retry.Value(ctx, policyFor(policy, s), func(ctx context.Context) (*DisplayData, error) {
			d, err := s.Resolve(ctx, t)
			if err == nil && d == nil {
				return nil, ErrNoData
			}
			return d, err
		})
		if err == nil {
			return d
		}
		entry := logger.WithField("strategy", s.Name())
		if errors.Is(err, ErrNoData) || errors.Is(err, ErrNotApplicable) {
			entry.WithError(err).Debug("Strategy had no data")
		} else {
			entry.WithError(err).Debug("Strategy failed")
		}
	}
	return nil
}
