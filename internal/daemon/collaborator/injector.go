package collaborator

import (
	"context"
	"time"

	tabwatterrors "github.com/grovetools/tabwatt/errors"
	"github.com/grovetools/tabwatt/pkg/retry"
)

// Injector asks the browser host to load the collaborator into a tab.
type Injector interface {
	Inject(ctx context.Context, tabID int) error
}

// InjectorFunc adapts a function to Injector.
type InjectorFunc func(ctx context.Context, tabID int) error

func (f InjectorFunc) Inject(ctx context.Context, tabID int) error { return f(ctx, tabID) }

// ReadyPolicy is the wait-for-ready loop after an injection: a fixed number of
// pings with a fixed pause between them.
func ReadyPolicy(attempts int, backoff time.Duration) retry.Policy {
	return retry.Policy{
		MaxAttempts:  attempts,
		InitialDelay: backoff,
		Multiplier:   1,
		Timeout:      backoff,
	}
}

// EnsureResult describes how EnsureReady ended.
type EnsureResult struct {
	AlreadyConnected bool
	Injected         bool
	Ready            bool
}

// EnsureReady makes sure a responsive collaborator exists for tabID. An
// already answering collaborator is left alone; otherwise it is injected and
// pinged under policy. Injection failures are returned but callers treat
// them as non-fatal.
func (h *Hub) EnsureReady(ctx context.Context, tabID int, inj Injector, policy retry.Policy) (EnsureResult, error) {
	var res EnsureResult
	if h.Connected(tabID) {
		pctx, cancel := context.WithTimeout(ctx, pingTimeout(policy))
		err := h.Ping(pctx, tabID)
		cancel()
		if err == nil {
			res.AlreadyConnected, res.Ready = true, true
			return res, nil
		}
	}

	if inj == nil {
		return res, tabwatterrors.CollaboratorUnavailable(tabID, nil)
	}
	if err := inj.Inject(ctx, tabID); err != nil {
		return res, tabwatterrors.CollaboratorUnavailable(tabID, err)
	}
	res.Injected = true

	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		return h.Ping(ctx, tabID)
	})
	if err != nil {
		return res, tabwatterrors.CollaboratorUnavailable(tabID, err)
	}
	res.Ready = true
	return res, nil
}

func pingTimeout(p retry.Policy) time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return 500 * time.Millisecond
}
