package subscription

import (
	"context"
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v81"
)

// TestParseTier tests tier parsing including rejection of unknown values.
func TestParseTier(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Tier
		wantErr bool
	}{
		{"free", "free", TierFree, false},
		{"basic", "basic", TierBasic, false},
		{"standard", "standard", TierStandard, false},
		{"premium", "premium", TierPremium, false},
		{"empty", "", "", true},
		{"unknown", "platinum", "", true},
		{"case sensitive", "Premium", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTier(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got tier %q", tt.input, got)
				}
				if !errors.Is(err, ErrUnknownTier) {
					t.Errorf("expected ErrUnknownTier, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseTier(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestCatalogTierFor tests price ID resolution.
func TestCatalogTierFor(t *testing.T) {
	catalog := Catalog{
		"price_basic":    TierBasic,
		"price_standard": TierStandard,
		"price_premium":  TierPremium,
	}

	tier, err := catalog.TierFor("price_premium")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tier != TierPremium {
		t.Errorf("expected premium, got %q", tier)
	}

	if _, err := catalog.TierFor("price_unknown"); !errors.Is(err, ErrUnmappedPrice) {
		t.Errorf("expected ErrUnmappedPrice, got %v", err)
	}
}

// recordingUpdater captures tier updates for assertions.
type recordingUpdater struct {
	establishmentID string
	tier            Tier
	err             error
}

func (u *recordingUpdater) UpdateSubscriptionTier(_ context.Context, establishmentID string, tier Tier) error {
	if u.err != nil {
		return u.err
	}
	u.establishmentID = establishmentID
	u.tier = tier
	return nil
}

// TestHandleCheckoutCompleted tests webhook application of a purchased tier.
func TestHandleCheckoutCompleted(t *testing.T) {
	updater := &recordingUpdater{}
	svc := NewService(updater, nil)

	sess := &stripe.CheckoutSession{
		ID: "cs_test_123",
		Metadata: map[string]string{
			MetadataEstablishmentID: "est-42",
			MetadataTier:            "standard",
		},
	}

	if err := svc.HandleCheckoutCompleted(context.Background(), sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updater.establishmentID != "est-42" || updater.tier != TierStandard {
		t.Errorf("expected est-42/standard, got %s/%s", updater.establishmentID, updater.tier)
	}
}

// TestHandleCheckoutCompletedRejectsBadMetadata tests metadata validation.
func TestHandleCheckoutCompletedRejectsBadMetadata(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]string
	}{
		{"missing establishment", map[string]string{MetadataTier: "basic"}},
		{"missing tier", map[string]string{MetadataEstablishmentID: "est-1"}},
		{"unknown tier", map[string]string{MetadataEstablishmentID: "est-1", MetadataTier: "gold"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updater := &recordingUpdater{}
			svc := NewService(updater, nil)

			sess := &stripe.CheckoutSession{ID: "cs_test_bad", Metadata: tt.metadata}
			if err := svc.HandleCheckoutCompleted(context.Background(), sess); err == nil {
				t.Error("expected error, got nil")
			}
			if updater.establishmentID != "" {
				t.Error("updater must not be called on invalid metadata")
			}
		})
	}
}
