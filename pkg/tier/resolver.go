// Package tier resolves the subscription tier of an account.
package tier

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/store"
)

// Source looks up the stored plan of an account.
type Source interface {
	GetAccountTier(ctx context.Context, accountID string) (models.Tier, error)
}

// Resolver maps accounts to tiers. Any failure resolves to the free tier.
type Resolver struct {
	src Source
}

// NewResolver creates a Resolver backed by src.
func NewResolver(src Source) *Resolver {
	return &Resolver{src: src}
}

// Resolve returns the account's tier, or TierFree when the account is
// unknown, the lookup fails or the stored value is not a known tier.
func (r *Resolver) Resolve(ctx context.Context, accountID string) models.Tier {
	t, err := r.src.GetAccountTier(ctx, accountID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return models.TierFree
	case err != nil:
		log.WithError(err).WithFields(log.Fields{
			"account_id": accountID,
			"op":         "resolve_tier",
		}).Warn("tier lookup failed, using free tier")
		return models.TierFree
	}

	parsed, err := models.ParseTier(string(t))
	if err != nil {
		log.WithError(err).WithField("account_id", accountID).Warn("stored tier invalid, using free tier")
		return models.TierFree
	}
	return parsed
}
