package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
)

// Checkout metadata keys used to carry the purchase target through Stripe.
const (
	MetadataEstablishmentID = "establishment_id"
	MetadataTier            = "tier"
)

// ErrUnmappedPrice is returned when a webhook references a Stripe price that
// is not part of the tier catalog.
var ErrUnmappedPrice = errors.New("stripe price not mapped to a tier")

// Catalog maps Stripe price IDs to the tier they purchase.
type Catalog map[string]Tier

// TierFor resolves the tier sold under the given Stripe price ID.
func (c Catalog) TierFor(priceID string) (Tier, error) {
	tier, ok := c[priceID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnmappedPrice, priceID)
	}
	return tier, nil
}

// CheckoutParams holds the inputs for creating a tier-upgrade checkout session.
type CheckoutParams struct {
	EstablishmentID string
	PriceID         string
	SuccessURL      string
	CancelURL       string
}

// Client is an interface for the Stripe operations used by the tier upgrade
// flow, kept narrow to enable testing with mocks.
type Client interface {
	CreateCheckoutSession(params *CheckoutParams) (*stripe.CheckoutSession, error)
}

// StripeClient implements Client using the real Stripe SDK.
type StripeClient struct {
	catalog Catalog
}

// NewStripeClient creates a new Stripe client with the given API key and
// price-to-tier catalog.
func NewStripeClient(apiKey string, catalog Catalog) *StripeClient {
	stripe.Key = apiKey
	return &StripeClient{catalog: catalog}
}

// CreateCheckoutSession creates a subscription-mode Checkout Session for a
// tier upgrade. The establishment ID and tier travel in session metadata so
// the webhook can apply the purchase without a separate lookup table.
func (c *StripeClient) CreateCheckoutSession(params *CheckoutParams) (*stripe.CheckoutSession, error) {
	tier, err := c.catalog.TierFor(params.PriceID)
	if err != nil {
		return nil, err
	}

	sessionParams := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(params.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
		Metadata: map[string]string{
			MetadataEstablishmentID: params.EstablishmentID,
			MetadataTier:            string(tier),
		},
	}

	return session.New(sessionParams)
}

// TierUpdater applies a purchased tier to an establishment record.
// The establishment repository satisfies this interface.
type TierUpdater interface {
	UpdateSubscriptionTier(ctx context.Context, establishmentID string, tier Tier) error
}

// Service applies completed checkout sessions to establishment records.
type Service struct {
	updater TierUpdater
	logger  *slog.Logger
}

// NewService creates a subscription service.
func NewService(updater TierUpdater, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{updater: updater, logger: logger}
}

// HandleCheckoutCompleted applies the tier purchased in a completed Checkout
// Session. The tier is validated before it touches the record store; a session
// with missing or unknown metadata is rejected.
func (s *Service) HandleCheckoutCompleted(ctx context.Context, sess *stripe.CheckoutSession) error {
	establishmentID := sess.Metadata[MetadataEstablishmentID]
	if establishmentID == "" {
		return fmt.Errorf("checkout session %s missing establishment metadata", sess.ID)
	}

	tier, err := ParseTier(sess.Metadata[MetadataTier])
	if err != nil {
		return fmt.Errorf("checkout session %s: %w", sess.ID, err)
	}

	if err := s.updater.UpdateSubscriptionTier(ctx, establishmentID, tier); err != nil {
		return fmt.Errorf("failed to apply tier %s to establishment %s: %w", tier, establishmentID, err)
	}

	s.logger.Info("subscription tier applied",
		"establishment_id", establishmentID,
		"tier", tier,
		"session_id", sess.ID)

	return nil
}
