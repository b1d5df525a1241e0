package models

// GenerationRequest is what the engine hands to a generation provider.
type GenerationRequest struct {
	RequestID   string       `json:"request_id"`
	ModelID     string       `json:"model_id"`
	Resource    ResourceType `json:"resource"`
	Constraints Constraints  `json:"constraints"`
	Prompt      string       `json:"prompt"`
}

// GenerationResult is the provider's answer. Only Success is inspected by
// the engine; TokensUsed overrides the routed token cost when non-zero.
type GenerationResult struct {
	Success    bool   `json:"success"`
	ResultURL  string `json:"result_url,omitempty"`
	Error      string `json:"error,omitempty"`
	TokensUsed int64  `json:"tokens_used,omitempty"`
}
