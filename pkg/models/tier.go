package models

import (
	"fmt"
	"strings"
)

// Tier is a subscription level. Tiers are totally ordered by entitlement.
type Tier string

const (
	TierFree          Tier = "free"
	TierStarterHidden Tier = "starter_hidden"
	TierStarter       Tier = "starter"
	TierPro           Tier = "pro"
	TierPremium       Tier = "premium"
)

// AllTiers lists every tier from least to most entitled.
var AllTiers = []Tier{TierFree, TierStarterHidden, TierStarter, TierPro, TierPremium}

// Rank returns the tier's position in AllTiers, or -1 for an unknown tier.
func (t Tier) Rank() int {
	for i, v := range AllTiers {
		if v == t {
			return i
		}
	}
	return -1
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool { return t.Rank() >= 0 }

// DisplayName returns the plan name shown to users.
func (t Tier) DisplayName() string {
	switch t {
	case TierFree:
		return "Free"
	case TierStarterHidden, TierStarter:
		return "Starter"
	case TierPro:
		return "Pro"
	case TierPremium:
		return "Premium"
	default:
		return string(t)
	}
}

// ParseTier parses a tier name. Dashes and case are normalised so that
// "Starter-Hidden" and "starter_hidden" are the same tier.
func ParseTier(s string) (Tier, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	t := Tier(norm)
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}

// ResourceType is a metered generation capability.
type ResourceType string

const (
	ResourceChat         ResourceType = "chat"
	ResourceImage        ResourceType = "image"
	ResourceVideo        ResourceType = "video"
	ResourceMusic        ResourceType = "music"
	ResourceVoice        ResourceType = "voice"
	ResourcePresentation ResourceType = "presentation"
)

// AllResources lists every resource type in display order.
var AllResources = []ResourceType{
	ResourceChat, ResourceImage, ResourceVideo, ResourceMusic, ResourceVoice, ResourcePresentation,
}

// Valid reports whether r is a known resource type.
func (r ResourceType) Valid() bool {
	for _, v := range AllResources {
		if v == r {
			return true
		}
	}
	return false
}

// ParseResource parses a resource type name.
func ParseResource(s string) (ResourceType, error) {
	r := ResourceType(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown resource type %q", s)
	}
	return r, nil
}

// Window defines the accounting period of a resource counter.
type Window string

const (
	WindowMonthly Window = "monthly"
	WindowDaily   Window = "daily"
)
