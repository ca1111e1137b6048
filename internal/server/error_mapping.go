package server

import (
	"context"
	"net/http"

	"github.com/RohanAwhad/adapter-critic/internal/gwerrors"
	"github.com/RohanAwhad/adapter-critic/internal/log"
	"github.com/RohanAwhad/adapter-critic/internal/objects"
)

// MapError translates the gateway's error taxonomy into an HTTP status
// and an objects.ErrorResponse body, logging the underlying cause with
// whatever context is available on the error (spec §7).
func MapError(ctx context.Context, err error) (int, objects.ErrorResponse) {
	if gwerrors.IsValidation(err) {
		return http.StatusUnprocessableEntity, objects.ErrorResponse{
			Error: objects.Error{Message: err.Error(), Type: "validation_error"},
		}
	}

	if gwerrors.IsRouting(err) {
		return http.StatusBadRequest, objects.ErrorResponse{
			Error: objects.Error{Message: err.Error(), Type: "routing_error"},
		}
	}

	if formatErr, ok := gwerrors.AsUpstreamFormatError(err); ok {
		log.Error(ctx, "upstream response format error",
			log.String("model", formatErr.Model), log.String("base_url", formatErr.BaseURL),
			log.Int("message_count", formatErr.MessageCount), log.Int("status_code", formatErr.StatusCode),
			log.String("reason", formatErr.Reason), log.String("body_preview", formatErr.BodyPreview))

		return http.StatusBadGateway, objects.ErrorResponse{
			Error: objects.Error{Message: "upstream returned non-OpenAI response shape", Type: "upstream_error"},
		}
	}

	if transportErr, ok := gwerrors.AsTransportError(err); ok {
		log.Error(ctx, "upstream transport error",
			log.String("model", transportErr.Model), log.String("base_url", transportErr.BaseURL),
			log.Cause(transportErr.Cause))

		return http.StatusBadGateway, objects.ErrorResponse{
			Error: objects.Error{Message: "upstream request failed", Type: "upstream_error"},
		}
	}

	log.Error(ctx, "unhandled gateway error", log.Cause(err))

	return http.StatusInternalServerError, objects.ErrorResponse{
		Error: objects.Error{Message: "internal error", Type: "internal_error"},
	}
}
