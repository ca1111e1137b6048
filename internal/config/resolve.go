package config

import (
	"dario.cat/mergo"

	"github.com/RohanAwhad/adapter-critic/internal/gwerrors"
)

// ResolveRuntimeConfig assembles a RuntimeConfig for servedModel by merging
// AppConfig with the per-request overrides, per spec §4.1's six-step
// resolution precedence.
func ResolveRuntimeConfig(app AppConfig, servedModel string, overrides AdapterCriticOverrides) (RuntimeConfig, error) {
	served, ok := app.ServedModels[servedModel]
	if !ok {
		return RuntimeConfig{}, gwerrors.Routingf("served model %q is not configured", servedModel)
	}

	mode := served.Mode
	if overrides.Mode != nil {
		mode = *overrides.Mode
	}

	if !mode.Valid() {
		return RuntimeConfig{}, gwerrors.Routingf("served model %q resolved to unknown mode %q", servedModel, mode)
	}

	apiTarget, err := resolveStage(&served.API, overrides.APIModel, overrides.APIBaseURL)
	if err != nil {
		return RuntimeConfig{}, gwerrors.Routingf("api stage for %q: %v", servedModel, err)
	}

	if apiTarget == nil || !apiTarget.Complete() {
		return RuntimeConfig{}, gwerrors.Routingf("served model %q has no resolvable api stage target", servedModel)
	}

	adapterTarget, err := resolveStage(served.Adapter, overrides.AdapterModel, overrides.AdapterBaseURL)
	if err != nil {
		return RuntimeConfig{}, gwerrors.Routingf("adapter stage for %q: %v", servedModel, err)
	}

	criticTarget, err := resolveStage(served.Critic, overrides.CriticModel, overrides.CriticBaseURL)
	if err != nil {
		return RuntimeConfig{}, gwerrors.Routingf("critic stage for %q: %v", servedModel, err)
	}

	advisorTarget, err := resolveStage(served.Advisor, overrides.AdvisorModel, overrides.AdvisorBaseURL)
	if err != nil {
		return RuntimeConfig{}, gwerrors.Routingf("advisor stage for %q: %v", servedModel, err)
	}

	// Fall back to the api target for the secondary stage the mode needs,
	// when neither a served-config target nor a partial override exists.
	switch mode {
	case ModeAdapter:
		if adapterTarget == nil {
			adapterTarget = apiTarget
		}
	case ModeCritic:
		if criticTarget == nil {
			criticTarget = apiTarget
		}
	case ModeAdvisor:
		if advisorTarget == nil {
			advisorTarget = apiTarget
		}
	case ModeDirect:
	}

	if mode == ModeAdapter && (adapterTarget == nil || !adapterTarget.Complete()) {
		return RuntimeConfig{}, gwerrors.Routingf("served model %q mode adapter requires a resolvable adapter stage target", servedModel)
	}

	if mode == ModeCritic && (criticTarget == nil || !criticTarget.Complete()) {
		return RuntimeConfig{}, gwerrors.Routingf("served model %q mode critic requires a resolvable critic stage target", servedModel)
	}

	if mode == ModeAdvisor && (advisorTarget == nil || !advisorTarget.Complete()) {
		return RuntimeConfig{}, gwerrors.Routingf("served model %q mode advisor requires a resolvable advisor stage target", servedModel)
	}

	maxRetries := 0
	if overrides.MaxAdapterRetries != nil {
		if *overrides.MaxAdapterRetries < 0 {
			return RuntimeConfig{}, gwerrors.Validation("max_adapter_retries must be >= 0")
		}

		maxRetries = *overrides.MaxAdapterRetries
	}

	return RuntimeConfig{
		ServedModel:         servedModel,
		Mode:                mode,
		API:                 *apiTarget,
		Adapter:             adapterTarget,
		Critic:              criticTarget,
		Advisor:             advisorTarget,
		AdapterSystemPrompt: served.AdapterSystemPrompt,
		CriticSystemPrompt:  served.CriticSystemPrompt,
		AdvisorSystemPrompt: served.AdvisorSystemPrompt,
		MaxAdapterRetries:   maxRetries,
	}, nil
}

// resolveStage merges an optional base StageTarget with an optional
// per-request (model, baseURL) override pair, override fields winning.
// Returns nil when there is nothing to resolve at all (no base, no
// override). Returns an error when the override is partial (only one of
// model/base_url given) and the base cannot fill the gap.
func resolveStage(base *StageTarget, overrideModel, overrideBaseURL *string) (*StageTarget, error) {
	if base == nil && overrideModel == nil && overrideBaseURL == nil {
		return nil, nil
	}

	resolved := StageTarget{}
	if base != nil {
		if err := mergo.Merge(&resolved, *base); err != nil {
			return nil, err
		}
	}

	if overrideModel != nil {
		resolved.Model = *overrideModel
	}

	if overrideBaseURL != nil {
		resolved.BaseURL = *overrideBaseURL
	}

	// A partial override (only one of model/base_url) with no base to fill
	// the other field is rejected, per spec §4.1 step 5.
	if base == nil {
		if overrideModel != nil && overrideBaseURL == nil {
			return nil, gwerrors.ErrValidation
		}

		if overrideBaseURL != nil && overrideModel == nil {
			return nil, gwerrors.ErrValidation
		}
	}

	return &resolved, nil
}
