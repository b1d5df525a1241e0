package models

import "time"

// UsageRecord is the generation count of one account and resource type
// within one accounting period.
type UsageRecord struct {
	AccountID string       `json:"account_id"`
	Resource  ResourceType `json:"resource"`
	Period    string       `json:"period"`
	Count     int64        `json:"count"`
}

// TokenBalance is the continuous consumption budget of an account for a period.
type TokenBalance struct {
	Used  int64 `json:"used"`
	Limit int64 `json:"limit"`
}

// Remaining returns max(0, Limit-Used).
func (b TokenBalance) Remaining() int64 {
	if r := b.Limit - b.Used; r > 0 {
		return r
	}
	return 0
}

// QuotaCheckResult is the outcome of a quota check. It is never persisted.
type QuotaCheckResult struct {
	Allowed  bool         `json:"allowed"`
	Resource ResourceType `json:"resource"`
	Current  int64        `json:"current"`
	Limit    int64        `json:"limit"`
	Tier     Tier         `json:"tier"`
	Message  string       `json:"message"`
	Window   Window       `json:"window"`
	ResetAt  time.Time    `json:"reset_at"`
	// Degraded is set when the result was computed from the built-in
	// fallback limits because the store was unreachable.
	Degraded bool `json:"degraded,omitempty"`
}

// Remaining returns how many generations are left in the period.
func (r QuotaCheckResult) Remaining() int64 {
	if n := r.Limit - r.Current; n > 0 {
		return n
	}
	return 0
}

// DeductResult is returned by a token deduction.
type DeductResult struct {
	Success bool         `json:"success"`
	Balance TokenBalance `json:"balance"`
}
