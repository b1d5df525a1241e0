package router

import (
	log "github.com/sirupsen/logrus"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/config"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
)

// Router maps (tier, resource, complexity) to a capability from the
// active policy. It is a total function: every input yields either a
// routed decision or the unavailable sentinel.
type Router struct {
	policy *config.PolicyHolder
}

// New creates a Router reading from the given policy holder.
func New(policy *config.PolicyHolder) *Router {
	return &Router{policy: policy}
}

// Route returns the capability for the combination. Tiers with a zero
// limit for the resource, and unknown inputs, are unavailable.
func (r *Router) Route(tier models.Tier, resource models.ResourceType, complexity models.ComplexityClass) models.RoutingDecision {
	p := r.policy.Get()
	if !tier.Valid() || !resource.Valid() || p.Limit(tier, resource) == 0 {
		return models.Unavailable(tier, resource, complexity)
	}

	c, ok := p.Capability(tier, resource, complexity)
	if !ok {
		// Validate rejects such policies; reaching this means the policy
		// was swapped in without validation.
		log.WithFields(log.Fields{
			"tier":       tier,
			"resource":   resource,
			"complexity": complexity,
		}).Error("no route for entitled combination")
		return models.Unavailable(tier, resource, complexity)
	}

	return models.RoutingDecision{
		Available:   true,
		ModelID:     c.Model,
		Provider:    c.Provider,
		Constraints: c.Constraints,
		TokenCost:   c.TokenCost,
		Tier:        tier,
		Resource:    resource,
		Complexity:  complexity,
	}
}

// Table returns every decision of the policy, ordered by resource, tier
// and complexity.
func (r *Router) Table() []models.RoutingDecision {
	out := make([]models.RoutingDecision, 0, len(models.AllResources)*len(models.AllTiers)*len(models.AllComplexities))
	for _, res := range models.AllResources {
		for _, t := range models.AllTiers {
			for _, cx := range models.AllComplexities {
				out = append(out, r.Route(t, res, cx))
			}
		}
	}
	return out
}
