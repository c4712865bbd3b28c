// Package dispatch fans a notification out to every eligible push
// subscription and records the outcome of each delivery.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/dunapp/water-level-alert/internal/domain"
	"github.com/dunapp/water-level-alert/internal/observability"
)

// SubscriptionStore is the slice of the data store the dispatcher needs.
type SubscriptionStore interface {
	// ListEligible returns enabled subscriptions. With no ids it returns those
	// opted into category; otherwise it returns the enabled subscriptions with
	// the given ids regardless of opt-in.
	ListEligible(ctx context.Context, category domain.Category, ids []string) ([]domain.Subscription, error)
	MarkNotified(ctx context.Context, subscriptionID string, at time.Time) error
	Disable(ctx context.Context, subscriptionID string) error
	AppendLog(ctx context.Context, entry domain.NotificationLogEntry) error
}

// Pusher delivers one encrypted message to a push endpoint. It returns the HTTP
// status of the push service, or an error when no response was received.
type Pusher interface {
	Push(ctx context.Context, sub domain.Subscription, message []byte) (int, error)
}

// Options tune the fan-out.
type Options struct {
	Concurrency int           // parallel sends; values < 1 mean 1
	PushTimeout time.Duration // per-send deadline; zero means none
}

// Service is the in-process notification dispatcher.
type Service struct {
	store   SubscriptionStore
	pusher  Pusher
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
	opts    Options
}

// New creates a Service. A nil pusher means push credentials are not
// configured; every dispatch then fails with a *domain.ConfigurationError.
func New(store SubscriptionStore, pusher Pusher, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Service {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Service{
		store:   store,
		pusher:  pusher,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
		opts:    opts,
	}
}

// message is what the service worker receives after decryption.
type message struct {
	domain.Payload
	Timestamp int64 `json:"timestamp"`
}

// outcome is the result of delivering to one subscription.
type outcome struct {
	status  domain.DeliveryStatus
	expired bool
	err     error
}

// Ready reports a *domain.ConfigurationError when push credentials are missing.
func (s *Service) Ready() error {
	if s.pusher == nil {
		return &domain.ConfigurationError{Key: "VAPID_PRIVATE_KEY", Msg: "VAPID keys not configured"}
	}
	return nil
}

// Dispatch delivers p to every enabled subscription opted into the payload's category.
func (s *Service) Dispatch(ctx context.Context, p domain.Payload) (domain.Summary, error) {
	return s.DispatchTo(ctx, p, nil)
}

// DispatchTo delivers p to the enabled subscriptions with the given ids, or to
// the category audience when ids is empty. Per-subscription failures are
// recorded and counted; only whole-batch failures are returned as errors.
func (s *Service) DispatchTo(ctx context.Context, p domain.Payload, ids []string) (domain.Summary, error) {
	if err := s.Ready(); err != nil {
		return domain.Summary{}, err
	}

	category, err := p.Category()
	if err != nil {
		return domain.Summary{}, fmt.Errorf("dispatch: %w", err)
	}

	p = p.WithDefaults()
	subs, err := s.store.ListEligible(ctx, category, ids)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		s.logger.Info("no eligible subscriptions", "category", category)
		return domain.Summary{}, nil
	}

	start := s.clock.Now()
	body, err := json.Marshal(message{Payload: p, Timestamp: start.UnixMilli()})
	if err != nil {
		return domain.Summary{}, fmt.Errorf("encode push message: %w", err)
	}

	outcomes := make([]outcome, len(subs))
	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i, sub := range subs {
		g.Go(func() error {
			outcomes[i] = s.deliver(ctx, sub, p, body)
			return nil
		})
	}
	_ = g.Wait() // deliver never returns an error to the group

	summary := domain.Summary{Total: len(subs)}
	for _, o := range outcomes {
		if o.status == domain.StatusSent {
			summary.Sent++
		} else {
			summary.Failed++
		}
	}

	s.metrics.DispatchDuration.Observe(s.clock.Since(start).Seconds())
	s.logger.Info("dispatch complete",
		"category", category,
		"total", summary.Total,
		"sent", summary.Sent,
		"failed", summary.Failed,
	)
	return summary, nil
}

// deliver sends to one subscription and records the result. It never fails the batch.
func (s *Service) deliver(ctx context.Context, sub domain.Subscription, p domain.Payload, body []byte) outcome {
	var o outcome
	switch {
	case !sub.Deliverable():
		o = outcome{status: domain.StatusSkipped, err: errors.New("subscription is missing endpoint or keys")}
	default:
		o = s.push(ctx, sub, body)
	}

	s.metrics.Notifications.WithLabelValues(string(o.status)).Inc()

	if o.status == domain.StatusSent {
		if err := s.store.MarkNotified(ctx, sub.ID, s.clock.Now()); err != nil {
			s.logger.Warn("mark subscription notified failed", "subscription_id", sub.ID, "error", err)
		}
	}
	if o.expired {
		s.metrics.SubscriptionsExpired.Inc()
		if err := s.store.Disable(ctx, sub.ID); err != nil {
			s.logger.Warn("disable expired subscription failed", "subscription_id", sub.ID, "error", err)
		} else {
			s.logger.Info("subscription expired, disabled", "subscription_id", sub.ID)
		}
	}
	if o.err != nil {
		s.logger.Warn("push delivery failed", "subscription_id", sub.ID, "status", o.status, "error", o.err)
	}

	s.appendLog(ctx, sub, p, o)
	return o
}

func (s *Service) push(ctx context.Context, sub domain.Subscription, body []byte) outcome {
	pushCtx := ctx
	if s.opts.PushTimeout > 0 {
		var cancel context.CancelFunc
		pushCtx, cancel = context.WithTimeout(ctx, s.opts.PushTimeout)
		defer cancel()
	}

	status, err := s.pusher.Push(pushCtx, sub, body)
	switch {
	case err != nil:
		return outcome{status: domain.StatusFailed, err: err}
	case status >= 200 && status < 300:
		return outcome{status: domain.StatusSent}
	case status == 410:
		return outcome{status: domain.StatusFailed, expired: true, err: domain.ErrSubscriptionExpired}
	default:
		return outcome{status: domain.StatusFailed, err: fmt.Errorf("push service returned HTTP %d", status)}
	}
}

func (s *Service) appendLog(ctx context.Context, sub domain.Subscription, p domain.Payload, o outcome) {
	entry := domain.NotificationLogEntry{
		SubscriptionID: sub.ID,
		StationID:      p.Data.StationID,
		Title:          p.Title,
		Body:           p.Body,
		Status:         o.status,
		CreatedAt:      s.clock.Now(),
	}
	if p.Data.Level != nil {
		entry.Value = *p.Data.Level
	}
	if o.err != nil {
		msg := o.err.Error()
		entry.ErrorMessage = &msg
	}

	if err := s.store.AppendLog(ctx, entry); err != nil {
		s.logger.Warn("append notification log failed", "subscription_id", sub.ID, "error", err)
	}
}
