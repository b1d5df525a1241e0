package models

import "time"

// GenerationEntry is one orchestrated request as written to the audit log.
type GenerationEntry struct {
	RequestID     string          `json:"request_id"`
	AccountHash   string          `json:"account_hash"`
	AccountPrefix string          `json:"account_prefix"`
	Resource      ResourceType    `json:"resource"`
	Tier          Tier            `json:"tier"`
	Complexity    ComplexityClass `json:"complexity,omitempty"`
	ModelID       string          `json:"model_id,omitempty"`
	Outcome       string          `json:"outcome"`
	Message       string          `json:"message,omitempty"`
	Tokens        int64           `json:"tokens"`
	LatencyMs     int64           `json:"latency_ms"`
	CreatedAt     time.Time       `json:"created_at"`
}

// AuditConfig controls the audit logging subsystem.
type AuditConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// AuditQueryOpts specifies filters for querying audit entries.
type AuditQueryOpts struct {
	AccountPrefix string
	Resource      ResourceType
	Outcome       string
	RequestID     string
	Since         time.Time
	Limit         int
}

// AuditStat holds aggregate counts for a resource/outcome/day combination.
type AuditStat struct {
	Resource ResourceType
	Outcome  string
	Day      string
	Count    int
}
