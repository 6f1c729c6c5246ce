package client

import (
	"context"
	"errors"
	"net/http"
	"time"

	apperrors "github.com/pscheid92/hashpipe/internal/platform/errors"
	"github.com/pscheid92/hashpipe/internal/platform/retry"
)

// ClassifyDial maps a Connect error to a retry action. A 429 handshake backs
// off longer. A refused handshake (403 and other 4xx) will not change on its
// own and stops. Network failures retry.
func ClassifyDial(err error) retry.Action {
	if errors.Is(err, ErrAlreadyConnected) || errors.Is(err, ErrNotOpen) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.Stop
	}

	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		return retry.Retry
	}
	status, ok := appErr.Context["status"].(int)
	switch {
	case !ok:
		return retry.Retry
	case status == http.StatusTooManyRequests:
		return retry.After
	case status >= 400 && status < 500:
		return retry.Stop
	default:
		return retry.Retry
	}
}

// ConnectWithRetry dials until the connection opens or the policy gives up.
// Failed attempts are logged, and MsgNoConnection is emitted once if the policy
// gives up. It only covers the dial. Once Open, a later closure is still surfaced
// as a notice and nothing reconnects.
func (r *Reconciler) ConnectWithRetry(ctx context.Context, url string, p retry.Policy) error {
	if p.Clock == nil {
		p.Clock = r.clock
	}
	if p.OnRetry == nil {
		p.OnRetry = func(attempt int, err error, backoff time.Duration) {
			r.logger.Warn("Connect failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		}
	}
	err := retry.DoVoid(ctx, p, ClassifyDial, func() error {
		return r.connect(ctx, url, false)
	})
	if err != nil && r.State() == Closed {
		r.notify(MsgNoConnection)
	}
	return err
}
