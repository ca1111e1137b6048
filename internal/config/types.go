// Package config holds the gateway's static routing configuration
// (AppConfig, loaded once at startup) and the per-request resolution of
// that configuration against client overrides into a RuntimeConfig
// (spec §3, §4.1).
package config

// Mode selects which workflow a served model runs.
type Mode string

const (
	ModeDirect  Mode = "direct"
	ModeAdapter Mode = "adapter"
	ModeCritic  Mode = "critic"
	ModeAdvisor Mode = "advisor"
)

// Valid reports whether m is one of the four known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeDirect, ModeAdapter, ModeCritic, ModeAdvisor:
		return true
	default:
		return false
	}
}

// StageTarget names one upstream call: which model, at which base URL,
// authorized via which environment variable (falling back to the
// gateway's default when unset).
type StageTarget struct {
	Model      string `mapstructure:"model" yaml:"model"`
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
	APIKeyEnv  string `mapstructure:"api_key_env" yaml:"api_key_env"`
}

// Complete reports whether both Model and BaseURL are non-empty (spec §3
// invariant: "A StageTarget is complete iff both model and base_url are
// non-empty").
func (t StageTarget) Complete() bool {
	return t.Model != "" && t.BaseURL != ""
}

// ServedModelConfig is one named routing profile exposed to clients as the
// `model` field of a chat completion request.
type ServedModelConfig struct {
	Mode    Mode         `mapstructure:"mode" yaml:"mode"`
	API     StageTarget  `mapstructure:"api" yaml:"api"`
	Adapter *StageTarget `mapstructure:"adapter" yaml:"adapter"`
	Critic  *StageTarget `mapstructure:"critic" yaml:"critic"`
	Advisor *StageTarget `mapstructure:"advisor" yaml:"advisor"`

	// System prompt overrides; empty string means "use the built-in default".
	AdapterSystemPrompt string `mapstructure:"adapter_system_prompt" yaml:"adapter_system_prompt"`
	CriticSystemPrompt  string `mapstructure:"critic_system_prompt"  yaml:"critic_system_prompt"`
	AdvisorSystemPrompt string `mapstructure:"advisor_system_prompt" yaml:"advisor_system_prompt"`
}

// AppConfig is the full startup routing configuration: a mapping from
// served-model name to its ServedModelConfig. Immutable after load.
type AppConfig struct {
	ServedModels map[string]ServedModelConfig `mapstructure:"served_models" yaml:"served_models"`

	// UpstreamTimeoutSeconds bounds every upstream call process-wide.
	// Zero means "use the gateway's built-in default".
	UpstreamTimeoutSeconds int `mapstructure:"upstream_timeout_seconds" yaml:"upstream_timeout_seconds"`
}

// AdapterCriticOverrides is the optional per-request override object
// (`x_adapter_critic`), spec §3/§6.
type AdapterCriticOverrides struct {
	Mode *Mode `json:"mode,omitempty"`

	APIModel      *string `json:"api_model,omitempty"`
	APIBaseURL    *string `json:"api_base_url,omitempty"`
	AdapterModel  *string `json:"adapter_model,omitempty"`
	AdapterBaseURL *string `json:"adapter_base_url,omitempty"`
	CriticModel   *string `json:"critic_model,omitempty"`
	CriticBaseURL *string `json:"critic_base_url,omitempty"`
	AdvisorModel  *string `json:"advisor_model,omitempty"`
	AdvisorBaseURL *string `json:"advisor_base_url,omitempty"`

	MaxAdapterRetries *int `json:"max_adapter_retries,omitempty"`
}

// RuntimeConfig is the fully resolved, per-request configuration: a
// served-model name, its effective mode, resolved StageTargets for every
// stage the mode requires, resolved system prompts, and the resolved
// adapter retry budget (spec §3/§4.1).
type RuntimeConfig struct {
	ServedModel string
	Mode        Mode

	API     StageTarget
	Adapter *StageTarget
	Critic  *StageTarget
	Advisor *StageTarget

	AdapterSystemPrompt string
	CriticSystemPrompt  string
	AdvisorSystemPrompt string

	MaxAdapterRetries int
}
