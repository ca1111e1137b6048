// Command gateway runs the adapter/critic HTTP gateway: it loads the
// routing configuration, wires the upstream gateways, and serves the
// OpenAI-compatible chat completions endpoint plus /healthz (spec §4,
// §6).
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/RohanAwhad/adapter-critic/internal/config"
	"github.com/RohanAwhad/adapter-critic/internal/gateway"
	"github.com/RohanAwhad/adapter-critic/internal/log"
	"github.com/RohanAwhad/adapter-critic/internal/runtimestate"
	"github.com/RohanAwhad/adapter-critic/internal/server"
)

const (
	defaultConfigPath     = "config.yaml"
	defaultAddr           = ":8080"
	shutdownGraceDuration = 10 * time.Second
)

func main() {
	log.Configure(log.ResolveLevel())

	ctx := context.Background()

	configPath := os.Getenv("ADAPTER_CRITIC_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	appConfig, err := config.Load(configPath)
	if err != nil {
		log.Error(ctx, "failed to load config", log.String("path", configPath), log.Cause(err))
		os.Exit(1)
	}

	gw, err := buildGateway(appConfig)
	if err != nil {
		log.Error(ctx, "failed to build upstream gateway", log.Cause(err))
		os.Exit(1)
	}

	state := runtimestate.New(appConfig, gw, nil, nil)

	addr := os.Getenv("ADAPTER_CRITIC_ADDR")
	if addr == "" {
		addr = defaultAddr
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := server.NewRouter(appConfig, state)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	go func() {
		log.Info(ctx, "gateway listening", log.String("addr", addr))

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "server error", log.Cause(err))
			os.Exit(1)
		}
	}()

	waitForShutdown(ctx, httpServer)
}

func waitForShutdown(ctx context.Context, httpServer *http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info(ctx, "shutting down gateway")

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownGraceDuration)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "graceful shutdown failed", log.Cause(err))
	}
}

// buildGateway wires an OpenAI-compatible gateway and a Vertex-Anthropic
// gateway behind a RoutingGateway, so a served model can point at either
// kind of upstream transparently (spec §4.2, §4.3, §4.4).
func buildGateway(appConfig config.AppConfig) (gateway.UpstreamGateway, error) {
	timeout := config.ResolveUpstreamTimeout(appConfig, gateway.DefaultTimeout)

	openaiGW, err := gateway.NewOpenAICompatibleGateway(&gateway.Config{
		DefaultAPIKeyEnv: "OPENAI_API_KEY",
		Timeout:          timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("openai gateway: %w", err)
	}

	vertexGW, err := gateway.NewVertexAnthropicGateway(&gateway.VertexGatewayConfig{
		DefaultAPIKeyEnv: "VERTEX_API_KEY",
		HTTPClient:       &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("vertex gateway: %w", err)
	}

	return gateway.NewRoutingGateway(openaiGW, vertexGW), nil
}
