package service

import (
	"context"
	"errors"
	"strings"

	"github.com/mycarconcierge/marketplace/internal/domain"
	"github.com/mycarconcierge/marketplace/internal/gateway"
	"github.com/mycarconcierge/marketplace/internal/repository"
)

// PayoutAccountService manages providers' connected payout accounts.
type PayoutAccountService struct {
	store   PayoutAccountStore
	gateway gateway.Gateway
	baseURL string
}

func NewPayoutAccountService(store PayoutAccountStore, gw gateway.Gateway, publicBaseURL string) *PayoutAccountService {
	return &PayoutAccountService{store: store, gateway: gw, baseURL: strings.TrimRight(publicBaseURL, "/")}
}

// PayoutAccount is the provider's connected account.
type PayoutAccount struct {
	AccountID string `json:"accountId"`
	Created   bool   `json:"created"`
}

// EnsureAccount returns the caller's connected account, creating it on first use.
func (s *PayoutAccountService) EnsureAccount(ctx context.Context, actor Actor) (*PayoutAccount, error) {
	profile, err := s.store.GetProfile(ctx, actor.UserID)
	if err != nil {
		return nil, storeError(err, "profile")
	}
	if profile.PayoutAccountID != nil && *profile.PayoutAccountID != "" {
		return &PayoutAccount{AccountID: *profile.PayoutAccountID}, nil
	}

	accountID, err := s.gateway.CreateConnectedAccount(ctx, gateway.ConnectedAccountRequest{
		OwnerID:      profile.ID.String(),
		Email:        profile.Email,
		BusinessName: profile.BusinessName,
	})
	if err != nil {
		return nil, domain.GatewayFailure(err, "could not create a payout account")
	}
	if err := s.store.SetPayoutAccount(ctx, profile.ID, accountID); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			current, getErr := s.store.GetProfile(ctx, profile.ID)
			if getErr == nil && current.PayoutAccountID != nil {
				return &PayoutAccount{AccountID: *current.PayoutAccountID}, nil
			}
		}
		return nil, storeError(err, "payout account")
	}
	return &PayoutAccount{AccountID: accountID, Created: true}, nil
}

// OnboardingLink returns a gateway-hosted onboarding URL for the caller's account.
func (s *PayoutAccountService) OnboardingLink(ctx context.Context, actor Actor) (string, error) {
	profile, err := s.store.GetProfile(ctx, actor.UserID)
	if err != nil {
		return "", storeError(err, "profile")
	}
	if profile.PayoutAccountID == nil || *profile.PayoutAccountID == "" {
		return "", domain.InvalidStatef("create a payout account first")
	}
	url, err := s.gateway.CreateOnboardingLink(ctx, *profile.PayoutAccountID,
		s.baseURL+"/provider/payouts?onboarding=complete",
		s.baseURL+"/provider/payouts?onboarding=refresh",
	)
	if err != nil {
		return "", domain.GatewayFailure(err, "could not create an onboarding link")
	}
	return url, nil
}
