// Package audit writes the referral activity log as a side channel.
// A failed write never undoes the transition it describes.
package audit

import (
	"context"
	"sync/atomic"
	"time"

	"broker_portal_backend/internal/referrals/domain"
	"broker_portal_backend/internal/referrals/ports"
	"broker_portal_backend/platform/logger"
	"broker_portal_backend/platform/retry"
)

const defaultRetryDelay = 50 * time.Millisecond

// Recorder appends events, retrying once before giving up.
type Recorder struct {
	appender   ports.EventAppender
	log        *logger.Logger
	retryDelay time.Duration
	failures   atomic.Int64
}

// NewRecorder creates a recorder over appender.
func NewRecorder(appender ports.EventAppender, log *logger.Logger) *Recorder {
	return &Recorder{appender: appender, log: log, retryDelay: defaultRetryDelay}
}

// WithRetryDelay overrides the pause before the second attempt.
func (r *Recorder) WithRetryDelay(d time.Duration) *Recorder {
	r.retryDelay = d
	return r
}

// Record appends event. It reports whether the event was stored; callers
// are not expected to act on false beyond what Failures exposes.
func (r *Recorder) Record(ctx context.Context, event domain.Event) bool {
	// The transition is already committed; a cancelled request must not drop its audit entry.
	ctx = context.WithoutCancel(ctx)

	err := retry.Do(ctx, nil, "append referral event", retry.Policy{
		Attempts:  2,
		BaseDelay: r.retryDelay,
	}, func(ctx context.Context) error {
		return r.appender.AppendEvent(ctx, event)
	})
	if err != nil {
		r.failures.Add(1)
		r.log.AuditFailure(event.LeadID.String(), string(event.Type), err)
		return false
	}
	return true
}

// Failures is the number of events dropped since start.
func (r *Recorder) Failures() int64 {
	return r.failures.Load()
}
