package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/phishguard/gateway/internal/classify"
)

// URLClassifier produces a verdict for a URL, cache first.
type URLClassifier interface {
	Classify(ctx context.Context, rawURL, mode string) (*classify.Result, error)
}

// Explainer describes a verdict in plain language.
type Explainer interface {
	Explain(ctx context.Context, res *classify.Result) (string, error)
}

type classifyRequest struct {
	URL             string `json:"url"`
	SensitivityMode string `json:"sensitivity_mode"`
}

type explainResponse struct {
	Result      *classify.Result `json:"result"`
	Explanation string           `json:"explanation"`
}

// ClassifyHandler serves URL verdicts.
type ClassifyHandler struct {
	pipeline  URLClassifier
	explainer Explainer
	logger    *slog.Logger
}

// NewClassifyHandler creates a ClassifyHandler. explainer may be nil when
// explanations are disabled.
func NewClassifyHandler(pipeline URLClassifier, explainer Explainer, logger *slog.Logger) *ClassifyHandler {
	return &ClassifyHandler{pipeline: pipeline, explainer: explainer, logger: logger}
}

// Classify handles POST /classify and POST /api/check-url.
func (ch *ClassifyHandler) Classify(w http.ResponseWriter, r *http.Request) {
	res, ok := ch.classify(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Explain handles POST /explain.
func (ch *ClassifyHandler) Explain(w http.ResponseWriter, r *http.Request) {
	if ch.explainer == nil {
		writeError(w, http.StatusServiceUnavailable, codeExplainerUnavailable, "explanations are not enabled")
		return
	}

	res, ok := ch.classify(w, r)
	if !ok {
		return
	}

	text, err := ch.explainer.Explain(r.Context(), res)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, codeExplainerUnavailable, "could not explain verdict")
		return
	}
	writeJSON(w, http.StatusOK, explainResponse{Result: res, Explanation: text})
}

func (ch *ClassifyHandler) classify(w http.ResponseWriter, r *http.Request) (*classify.Result, bool) {
	var req classifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return nil, false
	}

	res, err := ch.pipeline.Classify(r.Context(), req.URL, req.SensitivityMode)
	if err != nil {
		if !errors.Is(err, classify.ErrInvalidRequest) {
			ch.logger.Warn("classify request failed", "url", req.URL, "err", err)
		}
		writeClassifyError(w, err)
		return nil, false
	}
	return res, true
}
