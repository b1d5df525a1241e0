package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/models"
	"gopkg.in/yaml.v3"
)

// ErrInvalidPolicy is wrapped by every policy validation failure.
var ErrInvalidPolicy = errors.New("invalid policy")

// AnyComplexity is the route key that applies to every complexity class
// not listed explicitly for a tier.
const AnyComplexity = "any"

//go:embed default_policy.yaml
var defaultPolicyYAML []byte

// Policy is the tier limits table plus the routing table. It is the only
// place where tier entitlements and capability choices are defined.
type Policy struct {
	Tiers   map[models.Tier]TierPolicy                                    `yaml:"tiers"`
	Windows map[models.ResourceType]models.Window                         `yaml:"windows"`
	Routes  map[models.ResourceType]map[models.Tier]map[string]Capability `yaml:"routes"`
}

// TierPolicy holds the entitlements of one tier.
type TierPolicy struct {
	TokenBudget int64                         `yaml:"token_budget"`
	Limits      map[models.ResourceType]int64 `yaml:"limits"`
}

// Capability describes a concrete model and its operating constraints.
type Capability struct {
	Model       string             `yaml:"model"`
	Provider    string             `yaml:"provider"`
	TokenCost   int64              `yaml:"token_cost"`
	Constraints models.Constraints `yaml:"constraints"`
}

// DefaultPolicy returns the policy compiled into the binary.
func DefaultPolicy() *Policy {
	p, err := ParsePolicy(defaultPolicyYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded policy: %v", err))
	}
	return p
}

// DefaultPolicyYAML returns the raw embedded policy document.
func DefaultPolicyYAML() []byte {
	return append([]byte(nil), defaultPolicyYAML...)
}

// LoadPolicy reads and validates a policy file. An empty path yields the
// embedded default policy.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes and validates a policy document. Unknown keys are
// rejected so a misspelled constraint cannot silently become uncapped.
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Limit returns the period cap of a tier for a resource type.
func (p *Policy) Limit(tier models.Tier, resource models.ResourceType) int64 {
	return p.Tiers[tier].Limits[resource]
}

// TokenBudget returns the monthly token budget of a tier.
func (p *Policy) TokenBudget(tier models.Tier) int64 {
	return p.Tiers[tier].TokenBudget
}

// Window returns the accounting window of a resource type. Resources
// without an explicit window are metered monthly.
func (p *Policy) Window(resource models.ResourceType) models.Window {
	if w, ok := p.Windows[resource]; ok {
		return w
	}
	return models.WindowMonthly
}

// Capability looks up the route for a combination, falling back to the
// tier's "any" entry.
func (p *Policy) Capability(tier models.Tier, resource models.ResourceType, complexity models.ComplexityClass) (Capability, bool) {
	routes := p.Routes[resource][tier]
	if c, ok := routes[string(complexity)]; ok {
		return c, true
	}
	c, ok := routes[AnyComplexity]
	return c, ok
}

// Validate checks completeness and monotonicity of the policy. Every
// violation is reported; the returned error wraps ErrInvalidPolicy.
func (p *Policy) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	for t := range p.Tiers {
		if !t.Valid() {
			fail("tiers: unknown tier %q", t)
		}
	}
	for r, w := range p.Windows {
		if !r.Valid() {
			fail("windows: unknown resource %q", r)
		}
		if w != models.WindowMonthly && w != models.WindowDaily {
			fail("windows.%s: unknown window %q", r, w)
		}
	}

	for _, t := range models.AllTiers {
		tp, ok := p.Tiers[t]
		if !ok {
			fail("tiers.%s: missing", t)
			continue
		}
		if tp.TokenBudget < 0 {
			fail("tiers.%s.token_budget: negative", t)
		}
		for r := range tp.Limits {
			if !r.Valid() {
				fail("tiers.%s.limits: unknown resource %q", t, r)
			}
		}
		for _, r := range models.AllResources {
			v, ok := tp.Limits[r]
			if !ok {
				fail("tiers.%s.limits.%s: missing", t, r)
			} else if v < 0 {
				fail("tiers.%s.limits.%s: negative", t, r)
			}
		}
	}

	for i := 1; i < len(models.AllTiers); i++ {
		lo, hi := models.AllTiers[i-1], models.AllTiers[i]
		if p.TokenBudget(hi) < p.TokenBudget(lo) {
			fail("token_budget: %s (%d) below %s (%d)", hi, p.TokenBudget(hi), lo, p.TokenBudget(lo))
		}
		for _, r := range models.AllResources {
			if p.Limit(hi, r) < p.Limit(lo, r) {
				fail("limits.%s: %s (%d) below %s (%d)", r, hi, p.Limit(hi, r), lo, p.Limit(lo, r))
			}
		}
	}

	errs = append(errs, p.validateRoutes()...)

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidPolicy, errors.Join(errs...))
}

func (p *Policy) validateRoutes() []error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	for r, byTier := range p.Routes {
		if !r.Valid() {
			fail("routes: unknown resource %q", r)
			continue
		}
		for t, entries := range byTier {
			if !t.Valid() {
				fail("routes.%s: unknown tier %q", r, t)
				continue
			}
			if p.Limit(t, r) == 0 && len(entries) > 0 {
				fail("routes.%s.%s: routed but limit is 0", r, t)
			}
			for key, c := range entries {
				if key != AnyComplexity {
					if _, err := models.ParseComplexity(key); err != nil {
						fail("routes.%s.%s: unknown complexity %q", r, t, key)
					}
				}
				if strings.TrimSpace(c.Model) == "" {
					fail("routes.%s.%s.%s: model is required", r, t, key)
				}
				if c.TokenCost < 0 {
					fail("routes.%s.%s.%s: negative token_cost", r, t, key)
				}
				for name, v := range c.Constraints.Fields() {
					if v < 0 {
						fail("routes.%s.%s.%s.%s: negative", r, t, key, name)
					}
				}
			}
		}
	}

	for _, r := range models.AllResources {
		for _, cx := range models.AllComplexities {
			var prevTier models.Tier
			var prev *Capability
			for _, t := range models.AllTiers {
				if p.Limit(t, r) == 0 {
					continue
				}
				c, ok := p.Capability(t, r, cx)
				if !ok {
					fail("routes.%s.%s.%s: missing", r, t, cx)
					continue
				}
				if prev != nil {
					for _, name := range restrictedFields(prev.Constraints, c.Constraints) {
						fail("routes.%s.%s: %s more restrictive on %s than %s", r, cx, name, t, prevTier)
					}
				}
				prevTier, prev = t, &c
			}
		}
	}

	sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
	return errs
}

// restrictedFields lists the constraints on which hi caps harder than lo.
// Zero means uncapped, so an uncapped lower tier forces an uncapped higher one.
func restrictedFields(lo, hi models.Constraints) []string {
	var out []string
	hf := hi.Fields()
	for name, l := range lo.Fields() {
		h := hf[name]
		switch {
		case l == 0 && h != 0:
			out = append(out, name)
		case l > 0 && h != 0 && h < l:
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
