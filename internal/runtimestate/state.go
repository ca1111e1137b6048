// Package runtimestate holds the gateway's immutable, shared-across-requests
// state: the loaded AppConfig, the shared UpstreamGateway, and the id/time
// providers the response builder uses (spec §3 "Runtime state").
package runtimestate

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/RohanAwhad/adapter-critic/internal/config"
	"github.com/RohanAwhad/adapter-critic/internal/gateway"
)

// IDProvider mints a chat-completion response id.
type IDProvider func() string

// TimeProvider returns the current unix-seconds timestamp.
type TimeProvider func() int64

// DefaultIDProvider mints ids shaped "chatcmpl-<uuid hex>".
func DefaultIDProvider() string {
	return "chatcmpl-" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// DefaultTimeProvider returns the current unix-seconds timestamp.
func DefaultTimeProvider() int64 {
	return time.Now().Unix()
}

// State is the gateway's immutable per-process state, shared by every
// concurrently served request (spec §5).
type State struct {
	Config       config.AppConfig
	Gateway      gateway.UpstreamGateway
	IDProvider   IDProvider
	TimeProvider TimeProvider
}

// New builds a State, defaulting the id/time providers when not given.
func New(cfg config.AppConfig, gw gateway.UpstreamGateway, idProvider IDProvider, timeProvider TimeProvider) *State {
	if idProvider == nil {
		idProvider = DefaultIDProvider
	}

	if timeProvider == nil {
		timeProvider = DefaultTimeProvider
	}

	return &State{Config: cfg, Gateway: gw, IDProvider: idProvider, TimeProvider: timeProvider}
}
