package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pscheid92/hashpipe/internal/domain"
	apperrors "github.com/pscheid92/hashpipe/internal/platform/errors"
)

// ChangeDetector is the host's local change source. DetectChange reports a
// document to send when local state differs from what was last applied or sent.
// It must be idempotent: a second call with no new local change reports false.
type ChangeDetector interface {
	DetectChange() (domain.StateDocument, bool)
}

// Watch runs check-and-emit whenever events fires and on every poll tick, until
// ctx is done. Checks only run while the Reconciler is open. Polling covers hosts
// whose events are unreliable; it is harmless alongside them because the
// detector only reports real differences. A nil events channel means poll only.
// poll must be positive.
func (r *Reconciler) Watch(ctx context.Context, events <-chan struct{}, detector ChangeDetector, poll time.Duration) error {
	if poll <= 0 {
		return apperrors.ValidationError(fmt.Sprintf("poll interval must be positive, got %v", poll))
	}
	ticker := r.clock.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			r.checkAndEmit(detector)
		case <-ticker.Chan():
			r.checkAndEmit(detector)
		}
	}
}

func (r *Reconciler) checkAndEmit(detector ChangeDetector) {
	if r.State() != Open {
		return
	}
	doc, changed := detector.DetectChange()
	if !changed {
		return
	}
	if err := r.ChangeState(doc); err != nil && !errors.Is(err, ErrNotOpen) {
		r.logger.Warn("Failed to send local change", "error", err)
	}
}
