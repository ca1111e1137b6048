package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/RohanAwhad/adapter-critic/internal/config"
	"github.com/RohanAwhad/adapter-critic/internal/gateway"
	"github.com/RohanAwhad/adapter-critic/internal/gwerrors"
	"github.com/RohanAwhad/adapter-critic/internal/log"
	"github.com/RohanAwhad/adapter-critic/internal/runtimestate"
	"github.com/RohanAwhad/adapter-critic/internal/workflow"
)

// Handlers holds everything the gin routes need: the resolved app
// config, the upstream gateway, and the id/time providers (spec §4).
type Handlers struct {
	App   config.AppConfig
	State *runtimestate.State
}

// NewRouter builds the gin engine: CORS, POST /v1/chat/completions, and
// GET /healthz (spec §6).
func NewRouter(app config.AppConfig, state *runtimestate.State) *gin.Engine {
	handlers := &Handlers{App: app, State: state}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Content-Type", "Authorization"},
	}))

	engine.POST("/v1/chat/completions", handlers.ChatCompletions)
	engine.GET("/healthz", handlers.Healthz)

	return engine
}

// ChatCompletions implements POST /v1/chat/completions: parse → resolve
// → dispatch → build response (spec §4).
func (h *Handlers) ChatCompletions(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		status, errBody := MapError(ctx, gwerrors.Validationf("failed to read request body: %v", err))
		c.JSON(status, errBody)

		return
	}

	const bodyPreviewMaxChars = 2000

	if log.DebugEnabled(ctx) {
		log.Debug(ctx, "chat completions request", log.String("body_preview", log.Preview(string(body), bodyPreviewMaxChars)))
	}

	parsed, err := ParseRequest(body)
	if err != nil {
		status, errBody := MapError(ctx, err)
		c.JSON(status, errBody)

		return
	}

	runtime, err := config.ResolveRuntimeConfig(h.App, parsed.Request.Model, parsed.Overrides)
	if err != nil {
		status, errBody := MapError(ctx, err)
		c.JSON(status, errBody)

		return
	}

	var gw gateway.UpstreamGateway = h.State.Gateway

	output, err := workflow.Dispatch(ctx, runtime, parsed.Request.Messages, gw, parsed.RequestOptions)
	if err != nil {
		log.Error(ctx, "workflow dispatch failed",
			log.String("served_model", runtime.ServedModel), log.String("mode", string(runtime.Mode)), log.Cause(err))

		status, errBody := MapError(ctx, err)
		c.JSON(status, errBody)

		return
	}

	response := BuildResponse(
		h.State.IDProvider(), h.State.TimeProvider(), parsed.Request.Model, runtime.Mode, output,
	)

	if log.DebugEnabled(ctx) {
		if encoded, err := json.Marshal(response); err == nil {
			log.Debug(ctx, "chat completions response", log.String("body_preview", log.Preview(string(encoded), bodyPreviewMaxChars)))
		}
	}

	c.JSON(http.StatusOK, response)
}

// Healthz implements GET /healthz (spec §6).
func (h *Handlers) Healthz(c *gin.Context) {
	report := RunHealthCheck(c.Request.Context(), h.App)

	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, report)
}
