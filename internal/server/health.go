package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/RohanAwhad/adapter-critic/internal/config"
)

// defaultHealthAPIKeyEnv is used when a stage's api_key_env is unset.
const defaultHealthAPIKeyEnv = "OPENAI_API_KEY"

// defaultHealthTimeout bounds each /models probe.
const defaultHealthTimeout = 5 * time.Second

// HealthTarget is one deduplicated upstream worth probing. Several
// served models can share the same (base_url, model, api_key_env)
// triple; UsedBy records every served-model.stage that references it.
type HealthTarget struct {
	Model     string
	BaseURL   string
	APIKeyEnv string
	UsedBy    []string
}

func targetKey(t config.StageTarget) string {
	return strings.TrimRight(t.BaseURL, "/") + "|" + t.Model + "|" + t.APIKeyEnv
}

// CollectHealthTargets deduplicates every api/adapter/critic stage
// target across all served models (spec §6 /healthz).
func CollectHealthTargets(app config.AppConfig) []HealthTarget {
	byKey := map[string]*HealthTarget{}

	names := make([]string, 0, len(app.ServedModels))
	for name := range app.ServedModels {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, servedModel := range names {
		served := app.ServedModels[servedModel]

		stages := map[string]*config.StageTarget{
			"api":     &served.API,
			"adapter": served.Adapter,
			"critic":  served.Critic,
		}

		stageNames := []string{"api", "adapter", "critic"}
		for _, stageName := range stageNames {
			stage := stages[stageName]
			if stage == nil {
				continue
			}

			key := targetKey(*stage)
			usedBy := fmt.Sprintf("%s.%s", servedModel, stageName)

			if existing, ok := byKey[key]; ok {
				existing.UsedBy = append(existing.UsedBy, usedBy)
				continue
			}

			byKey[key] = &HealthTarget{
				Model:     stage.Model,
				BaseURL:   strings.TrimRight(stage.BaseURL, "/"),
				APIKeyEnv: stage.APIKeyEnv,
				UsedBy:    []string{usedBy},
			}
		}
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	targets := make([]HealthTarget, 0, len(keys))
	for _, k := range keys {
		t := byKey[k]
		sort.Strings(t.UsedBy)
		targets = append(targets, *t)
	}

	return targets
}

// TargetResult is one probed target's outcome.
type TargetResult struct {
	Model      string   `json:"model"`
	BaseURL    string   `json:"base_url"`
	APIKeyEnv  string   `json:"api_key_env,omitempty"`
	UsedBy     []string `json:"used_by"`
	OK         bool     `json:"ok"`
	StatusCode int      `json:"status_code"`
	Error      string   `json:"error,omitempty"`
	DurationMs int64    `json:"duration_ms"`
}

// HealthReport is the /healthz response body (spec §6).
type HealthReport struct {
	Status     string         `json:"status"`
	Checked    int            `json:"checked"`
	Healthy    int            `json:"healthy"`
	DurationMs int64          `json:"duration_ms"`
	Targets    []TargetResult `json:"targets"`
}

func resolveHealthAPIKey(apiKeyEnv string) string {
	if apiKeyEnv != "" {
		return os.Getenv(apiKeyEnv)
	}

	return os.Getenv(defaultHealthAPIKeyEnv)
}

func checkTarget(ctx context.Context, client *http.Client, target HealthTarget) TargetResult {
	started := time.Now()

	result := TargetResult{
		Model: target.Model, BaseURL: target.BaseURL, APIKeyEnv: target.APIKeyEnv, UsedBy: target.UsedBy,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.BaseURL+"/models", nil)
	if err != nil {
		result.Error = fmt.Sprintf("health probe failed: %v", err)
		return result
	}

	req.Header.Set("Content-Type", "application/json")
	if apiKey := resolveHealthAPIKey(target.APIKeyEnv); apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		result.Error = fmt.Sprintf("health probe failed: %v", err)
		result.DurationMs = time.Since(started).Milliseconds()
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	result.DurationMs = time.Since(started).Milliseconds()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result.Error = fmt.Sprintf("/models returned status %d", resp.StatusCode)
		return result
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		result.Error = fmt.Sprintf("health probe failed: %v", err)
		return result
	}

	parsed := gjson.ParseBytes(body)
	if !parsed.IsObject() {
		result.Error = "/models response is not a JSON object"
		return result
	}

	data := parsed.Get("data")
	if !data.IsArray() {
		result.Error = "/models response missing data list"
		return result
	}

	found := false
	for _, item := range data.Array() {
		if !item.IsObject() {
			continue
		}

		if item.Get("id").String() == target.Model || item.Get("root").String() == target.Model {
			found = true
			break
		}
	}

	if !found {
		result.Error = "configured model not found in /models"
		return result
	}

	result.OK = true

	return result
}

// RunHealthCheck probes every deduplicated upstream target concurrently
// via errgroup and summarizes the results (spec §6 /healthz).
func RunHealthCheck(ctx context.Context, app config.AppConfig) HealthReport {
	started := time.Now()

	targets := CollectHealthTargets(app)
	results := make([]TargetResult, len(targets))

	client := &http.Client{Timeout: defaultHealthTimeout}

	group, groupCtx := errgroup.WithContext(ctx)
	for i, target := range targets {
		i, target := i, target
		group.Go(func() error {
			results[i] = checkTarget(groupCtx, client, target)
			return nil
		})
	}

	_ = group.Wait()

	healthy := 0
	for _, r := range results {
		if r.OK {
			healthy++
		}
	}

	status := "ok"
	if healthy != len(results) {
		status = "degraded"
	}

	return HealthReport{
		Status:     status,
		Checked:    len(results),
		Healthy:    healthy,
		DurationMs: time.Since(started).Milliseconds(),
		Targets:    results,
	}
}
