// Package webpush delivers encrypted Web Push messages with VAPID authentication.
package webpush

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/dunapp/water-level-alert/internal/domain"
)

// Config holds the VAPID credentials and delivery options.
type Config struct {
	PublicKey  string
	PrivateKey string
	Subject    string        // contact URI, e.g. mailto:contact@dunapp.hu
	TTL        time.Duration // how long the push service keeps an undelivered message
	HTTPClient *http.Client  // nil means http.DefaultClient
}

// Sender implements dispatch.Pusher.
type Sender struct {
	cfg Config
}

// NewSender validates the credentials and creates a Sender.
func NewSender(cfg Config) (*Sender, error) {
	if cfg.PublicKey == "" {
		return nil, &domain.ConfigurationError{Key: "VAPID_PUBLIC_KEY", Msg: "is required"}
	}
	if cfg.PrivateKey == "" {
		return nil, &domain.ConfigurationError{Key: "VAPID_PRIVATE_KEY", Msg: "is required"}
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &Sender{cfg: cfg}, nil
}

// PublicKey returns the application server key browsers subscribe with.
func (s *Sender) PublicKey() string {
	return s.cfg.PublicKey
}

// Push encrypts message for sub and posts it to the subscription endpoint. It
// returns the push service's status code; err is set only when no response
// was received or the message could not be encrypted.
func (s *Sender) Push(ctx context.Context, sub domain.Subscription, message []byte) (int, error) {
	opts := &webpush.Options{
		Subscriber:      s.cfg.Subject,
		VAPIDPublicKey:  s.cfg.PublicKey,
		VAPIDPrivateKey: s.cfg.PrivateKey,
		TTL:             int(s.cfg.TTL.Seconds()),
		Urgency:         webpush.UrgencyHigh,
	}
	if s.cfg.HTTPClient != nil {
		opts.HTTPClient = s.cfg.HTTPClient
	}

	resp, err := webpush.SendNotificationWithContext(ctx, message, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, opts)
	if err != nil {
		return 0, fmt.Errorf("send web push: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}
