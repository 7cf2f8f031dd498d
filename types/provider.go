package types

// ProviderDescriptor is the static, administratively-mutated configuration
// for one registered provider: its selection priority, enablement, resource
// limits, and capabilities. ProviderManager holds exactly one descriptor per
// provider and consults it before every dispatch; it is never mutated by
// the hot path, only by an administrative call.
type ProviderDescriptor struct {
	Name               string               `json:"name"`
	Priority           int                  `json:"priority"`
	Enabled            bool                 `json:"enabled"`
	Limits             ProviderLimits       `json:"limits"`
	Capabilities       ProviderCapabilities `json:"capabilities"`
	OptimalTemperature float64              `json:"optimal_temperature"`
}

// ProviderLimits bounds how much of a provider's capacity ProviderManager
// and its collaborators (RateLimiter, ProviderInvoker) may use at once.
type ProviderLimits struct {
	MaxTokens  int `json:"max_tokens"`
	RPM        int `json:"rpm"`
	Concurrent int `json:"concurrent"`
}

// ProviderCapabilities records what a provider adapter can do, independent
// of whether the current request asks for it.
type ProviderCapabilities struct {
	Streaming bool `json:"streaming"`
	JSONMode  bool `json:"json_mode"`
}
