package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/sita/pkg/tiers"
	"github.com/Mindburn-Labs/sita/pkg/util/resiliency"
)

// ErrProvider wraps failures of the hosted checkout provider.
var ErrProvider = errors.New("payments: checkout provider failed")

// CheckoutRequest describes one donation checkout.
type CheckoutRequest struct {
	DonationID  string       `json:"donation_id"`
	Tier        tiers.TierID `json:"tier"`
	AmountCents int64        `json:"amount_cents"`
	Email       string       `json:"customer_email"`
	SuccessURL  string       `json:"success_url"`
	CancelURL   string       `json:"cancel_url"`
}

// CheckoutSession is the provider's answer: where to send the donor.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Provider creates hosted checkout sessions.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

// HostedProvider calls a hosted checkout API over HTTP.
type HostedProvider struct {
	baseURL   string
	secretKey string
	client    *resiliency.EnhancedClient
}

// NewHostedProvider builds a provider for the API at baseURL.
func NewHostedProvider(baseURL, secretKey string, client *resiliency.EnhancedClient) *HostedProvider {
	if client == nil {
		client = resiliency.NewEnhancedClient(resiliency.Options{Name: "checkout"})
	}
	return &HostedProvider{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		client:    client,
	}
}

func (p *HostedProvider) CreateCheckoutSession(ctx context.Context, in CheckoutRequest) (*CheckoutSession, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/checkout/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Idempotency-Key", in.DonationID)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrProvider, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var cs CheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&cs); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrProvider, err)
	}
	if cs.ID == "" || cs.URL == "" {
		return nil, fmt.Errorf("%w: incomplete session", ErrProvider)
	}
	return &cs, nil
}

// SimProvider fakes a provider for demos and tests: the redirect lands
// straight on the success page.
type SimProvider struct {
	PublicURL string
}

func (p *SimProvider) CreateCheckoutSession(_ context.Context, in CheckoutRequest) (*CheckoutSession, error) {
	id := "cs_sim_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	u := in.SuccessURL
	if u == "" {
		u = strings.TrimRight(p.PublicURL, "/") + "/donate/success"
	}
	return &CheckoutSession{ID: id, URL: u + "?session_id=" + url.QueryEscape(id)}, nil
}
