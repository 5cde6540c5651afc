// Package payments runs donation checkout against a hosted provider and
// settles donations from the provider's signed webhooks.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/benbjohnson/clock"
	nanoid "github.com/matoous/go-nanoid/v2"

	"github.com/Mindburn-Labs/sita/pkg/events"
	"github.com/Mindburn-Labs/sita/pkg/records"
	"github.com/Mindburn-Labs/sita/pkg/tiers"
)

// Donation statuses.
const (
	StatusPending = "pending"
	StatusPaid    = "paid"
)

// EventCheckoutCompleted is the webhook event that marks a donation paid.
const EventCheckoutCompleted = "checkout.session.completed"

const (
	idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	idLength   = 12
)

// Options configures a Service.
type Options struct {
	Provider      Provider
	Records       records.Store
	Publisher     events.Publisher
	WebhookSecret string
	PublicURL     string
	Clock         clock.Clock
	Logger        *slog.Logger
}

// Service creates checkouts and applies webhooks.
type Service struct {
	provider  Provider
	records   records.Store
	publisher events.Publisher
	secret    []byte
	publicURL string
	clk       clock.Clock
	logger    *slog.Logger
}

// NewService builds a Service.
func NewService(opts Options) *Service {
	if opts.Publisher == nil {
		opts.Publisher = &events.NoopPublisher{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		provider:  opts.Provider,
		records:   opts.Records,
		publisher: opts.Publisher,
		secret:    []byte(opts.WebhookSecret),
		publicURL: strings.TrimRight(opts.PublicURL, "/"),
		clk:       opts.Clock,
		logger:    opts.Logger.With("component", "payments"),
	}
}

// Checkout records a pending donation and returns the provider redirect URL.
func (s *Service) Checkout(ctx context.Context, tier tiers.TierID, amountCents int64, email string) (string, error) {
	t, err := tiers.Validate(tier, amountCents)
	if err != nil {
		return "", err
	}
	addr, err := NormalizeEmail(email)
	if err != nil {
		return "", err
	}
	suffix, err := nanoid.Generate(idAlphabet, idLength)
	if err != nil {
		return "", fmt.Errorf("payments: %w", err)
	}
	id := "don_" + suffix

	if err := s.records.Insert(ctx, records.TableDonations, records.Record{
		"id":           id,
		"tier":         string(t.ID),
		"amount_cents": amountCents,
		"email":        addr,
		"status":       StatusPending,
		"created_at":   s.clk.Now().UTC(),
	}); err != nil {
		return "", err
	}

	cs, err := s.provider.CreateCheckoutSession(ctx, CheckoutRequest{
		DonationID:  id,
		Tier:        t.ID,
		AmountCents: amountCents,
		Email:       addr,
		SuccessURL:  s.publicURL + "/donate/success",
		CancelURL:   s.publicURL + "/donate",
	})
	if err != nil {
		s.logger.WarnContext(ctx, "checkout session failed", "donation", id, "error", err)
		return "", err
	}

	if _, err := s.records.Update(ctx, records.TableDonations,
		[]records.Filter{records.Where("id", id)},
		records.Record{"checkout_id": cs.ID},
	); err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "checkout created", "donation", id, "tier", t.ID, "amount_cents", amountCents)
	return cs.URL, nil
}

// webhookEvent is the subset of the provider event we read.
type webhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

// HandleWebhook verifies and applies one webhook delivery. Deliveries for
// unknown event types are accepted and ignored. Redeliveries of an already
// settled checkout are no-ops.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if err := VerifySignature(s.secret, payload, signature, s.clk.Now()); err != nil {
		return err
	}

	var ev webhookEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("payments: decode webhook: %w", err)
	}
	if ev.Type != EventCheckoutCompleted {
		s.logger.DebugContext(ctx, "webhook ignored", "event", ev.ID, "type", ev.Type)
		return nil
	}
	checkoutID := ev.Data.Object.ID
	if checkoutID == "" {
		return errors.New("payments: webhook missing checkout session id")
	}

	n, err := s.records.Update(ctx, records.TableDonations,
		[]records.Filter{records.Where("checkout_id", checkoutID), records.Where("status", StatusPending)},
		records.Record{"status": StatusPaid, "paid_at": s.clk.Now().UTC()},
	)
	if err != nil {
		return err
	}
	if n == 0 {
		s.logger.InfoContext(ctx, "webhook for settled or unknown checkout", "checkout", checkoutID)
		return nil
	}

	rows, err := s.records.Select(ctx, records.Query{
		Table:   records.TableDonations,
		Filters: []records.Filter{records.Where("checkout_id", checkoutID)},
		Limit:   1,
	})
	if err != nil {
		return err
	}
	if len(rows) == 1 {
		d := rows[0]
		paid := events.DonationPaid{DonationID: d.String("id"), Tier: d.String("tier"), AmountCents: d.Int("amount_cents")}
		if err := s.publisher.Publish(ctx, events.TopicDonationPaid, paid); err != nil {
			s.logger.WarnContext(ctx, "failed to publish donation", "donation", paid.DonationID, "error", err)
		}
		s.logger.InfoContext(ctx, "donation paid", "donation", paid.DonationID, "tier", paid.Tier)
	}
	return nil
}
