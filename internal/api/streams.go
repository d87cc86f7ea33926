package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/oe-mirrors/streamlink-27/internal/utils"
	"github.com/oe-mirrors/streamlink-27/pkg/media"
	"github.com/oe-mirrors/streamlink-27/pkg/selector"
	"github.com/oe-mirrors/streamlink-27/pkg/stream"
	"github.com/oe-mirrors/streamlink-27/pkg/transport"
)

// GET /api/streams?url=
func (a *ApiManagerCtx) streams(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		w.WriteHeader(http.StatusBadRequest)
		//nolint
		w.Write([]byte("400 missing url"))
		return
	}

	logger := a.logger.With().Str("url", rawURL).Logger()

	opts, err := a.engine.Stream()
	if err != nil {
		logger.Error().Err(err).Msg("invalid engine configuration")
		writeError(w, err)
		return
	}

	names, err := stream.Streams(r.Context(), rawURL, opts)
	if err != nil {
		logger.Warn().Err(err).Msg("unable to list streams")
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(names); err != nil {
		logger.Err(err).Msg("unable to write response")
	}
}

// GET /api/stream?url=&quality=
func (a *ApiManagerCtx) stream(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		w.WriteHeader(http.StatusBadRequest)
		//nolint
		w.Write([]byte("400 missing url"))
		return
	}

	quality := r.URL.Query().Get("quality")
	if quality == "" {
		quality = selector.Best
	}

	id := uuid.NewString()
	logger := a.logger.With().
		Str("request", id).
		Str("url", rawURL).
		Str("quality", quality).
		Logger()

	opts, err := a.engine.Stream()
	if err != nil {
		logger.Error().Err(err).Msg("invalid engine configuration")
		writeError(w, err)
		return
	}

	s, err := stream.Open(r.Context(), rawURL, quality, opts)
	if err != nil {
		logger.Warn().Err(err).Msg("unable to open stream")
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", s.Kind().ContentType())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Request-Id", id)

	logger.Info().Str("kind", string(s.Kind())).Msg("stream started")

	out := utils.HTTPWriter(w)
	err = s.WriteTo(r.Context(), out)

	switch {
	case err == nil:
		logger.Info().Int64("bytes", out.Written()).Msg("stream finished")
	case errors.Is(err, context.Canceled):
		logger.Info().Int64("bytes", out.Written()).Msg("client disconnected")
	case out.Written() == 0:
		logger.Warn().Err(err).Msg("stream failed before any data")
		w.Header().Del("Content-Type")
		writeError(w, err)
	default:
		// status is already sent, the client sees a truncated stream
		logger.Warn().Err(err).Int64("bytes", out.Written()).Msg("stream failed")
	}
}

// writeError maps engine errors to http status codes.
func writeError(w http.ResponseWriter, err error) {
	var (
		noneErr      *media.NoStreamsAvailableError
		malformedErr *media.MalformedManifestError
		statusErr    *transport.StatusError
	)

	code := http.StatusInternalServerError
	switch {
	case errors.As(err, &noneErr):
		code = http.StatusNotFound
	case errors.Is(err, media.ErrEncrypted):
		code = http.StatusForbidden
	case errors.As(err, &malformedErr), errors.As(err, &statusErr):
		code = http.StatusBadGateway
	}

	w.WriteHeader(code)
	//nolint
	w.Write([]byte(fmt.Sprintf("%d %v\n", code, err)))
}
