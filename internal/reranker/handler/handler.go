// Package handler exposes the rerank and bench operations over HTTP. It
// decodes token-matrix payloads with sonic, bounds compute time, maps the
// error taxonomy to HTTP statuses, and feeds the analytics stream.
package handler

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"golang.org/x/sync/singleflight"

	"github.com/rerankd/rerankd/internal/analytics"
	"github.com/rerankd/rerankd/internal/reranker/bench"
	"github.com/rerankd/rerankd/internal/reranker/pruner"
	"github.com/rerankd/rerankd/internal/reranker/service"
	"github.com/rerankd/rerankd/pkg/config"
	"github.com/rerankd/rerankd/pkg/errors"
	"github.com/rerankd/rerankd/pkg/logger"
	"github.com/rerankd/rerankd/pkg/metrics"
	"github.com/rerankd/rerankd/pkg/resilience"
)

// Handler serves the rerank API.
type Handler struct {
	svc            *service.Service
	harness        *bench.Harness
	collector      *analytics.Collector
	metrics        *metrics.Metrics
	benchCfg       config.BenchConfig
	requestTimeout time.Duration
	benchGroup     singleflight.Group
	logger         *slog.Logger
}

// New creates a Handler. collector and m may be nil, in which case the
// corresponding concerns are skipped.
func New(svc *service.Service, harness *bench.Harness, collector *analytics.Collector, m *metrics.Metrics, benchCfg config.BenchConfig, requestTimeout time.Duration) *Handler {
	return &Handler{
		svc:            svc,
		harness:        harness,
		collector:      collector,
		metrics:        m,
		benchCfg:       benchCfg,
		requestTimeout: requestTimeout,
		logger:         slog.Default().With("component", "rerank-handler"),
	}
}

// Rerank handles POST /api/v1/rerank.
func (h *Handler) Rerank(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req service.Request
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var result *service.Result
	err := resilience.WithTimeout(ctx, h.requestTimeout, "rerank", func(ctx context.Context) error {
		var rerr error
		result, rerr = h.svc.Rerank(ctx, &req)
		return rerr
	})

	latencyMs := time.Since(start).Milliseconds()
	outcome := classify(err)
	if h.metrics != nil {
		h.metrics.RerankRequestsTotal.WithLabelValues(outcome).Inc()
		h.metrics.RerankLatency.Observe(time.Since(start).Seconds())
	}

	if err != nil {
		log.Error("rerank failed",
			"outcome", outcome,
			"docs", len(req.DTokens),
			"latency_ms", latencyMs,
			"error", err,
		)
		h.track(ctx, analytics.RerankEvent{
			Outcome:      eventOutcome(outcome),
			QTokensIn:    len(req.QTokens),
			DocsScored:   0,
			TopK:         req.TopK,
			PruneMethod:  req.Prune.Method,
			TotalMs:      latencyMs,
			ErrorMessage: err.Error(),
		})
		h.writeError(w, errors.HTTPStatusCode(err), err.Error())
		return
	}

	if h.metrics != nil {
		h.metrics.DocsScoredTotal.Add(float64(result.Perf.Samples))
		h.metrics.DocsPerRequest.Observe(float64(len(req.DTokens)))
	}
	h.track(ctx, analytics.RerankEvent{
		Outcome:     analytics.OutcomeOK,
		QTokensIn:   len(req.QTokens),
		DocsScored:  result.Perf.Samples,
		Returned:    len(result.Order),
		TopK:        req.TopK,
		PruneMethod: req.Prune.Method,
		PerDocMsP50: result.Perf.PerDocMsP50,
		PerDocMsP95: result.Perf.PerDocMsP95,
		TotalMs:     latencyMs,
	})

	h.writeJSON(w, http.StatusOK, result)
}

// Bench handles GET /api/v1/bench. Identical concurrent runs are coalesced
// through singleflight so overlapping bench calls cannot multiply load on
// the scoring pool.
func (h *Handler) Bench(w http.ResponseWriter, r *http.Request) {
	params, err := h.benchParams(r)
	if err != nil {
		if h.metrics != nil {
			h.metrics.BenchRunsTotal.WithLabelValues("rejected").Inc()
		}
		h.writeError(w, errors.HTTPStatusCode(err), err.Error())
		return
	}

	key := fmt.Sprintf("%d/%d/%d/%s/%d/%d/%d",
		params.NDocs, params.TokensPerDoc, params.Dim,
		params.Prune.Method, params.Prune.QMax, params.Prune.DMax, params.Seed)
	v, err, shared := h.benchGroup.Do(key, func() (any, error) {
		return h.harness.Run(r.Context(), params)
	})
	if err != nil {
		if h.metrics != nil {
			h.metrics.BenchRunsTotal.WithLabelValues("error").Inc()
		}
		h.writeError(w, errors.HTTPStatusCode(err), err.Error())
		return
	}
	if shared {
		h.logger.Debug("bench run coalesced", "key", key)
	}
	if h.metrics != nil {
		h.metrics.BenchRunsTotal.WithLabelValues("ok").Inc()
	}
	h.writeJSON(w, http.StatusOK, v)
}

// benchParams parses and caps the bench query parameters. The prune
// parameter is either "none" or "qmax/dmax" as in "16/64".
func (h *Handler) benchParams(r *http.Request) (bench.Params, error) {
	q := r.URL.Query()
	params := bench.Params{
		NDocs:        h.benchCfg.DefaultDocs,
		TokensPerDoc: h.benchCfg.DefaultTokens,
		Dim:          h.benchCfg.DefaultDim,
		Prune:        pruner.Config{Method: pruner.MethodNone},
	}

	var err error
	if params.NDocs, err = intParam(q.Get("n_docs"), params.NDocs); err != nil {
		return params, err
	}
	if params.TokensPerDoc, err = intParam(q.Get("tokens_per_doc"), params.TokensPerDoc); err != nil {
		return params, err
	}
	if params.Dim, err = intParam(q.Get("dim"), params.Dim); err != nil {
		return params, err
	}
	if v := q.Get("seed"); v != "" {
		seed, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			return params, errors.Newf(errors.ErrInvalidInput, http.StatusBadRequest,
				"seed %q is not an integer", v)
		}
		params.Seed = seed
	}
	if v := q.Get("prune"); v != "" && v != pruner.MethodNone {
		qMax, dMax, perr := parsePruneSpec(v)
		if perr != nil {
			return params, perr
		}
		params.Prune = pruner.Config{QMax: qMax, DMax: dMax, Method: pruner.MethodIDFNorm}
	}

	if params.NDocs > h.benchCfg.MaxDocs {
		return params, errors.Newf(errors.ErrInvalidInput, http.StatusBadRequest,
			"n_docs %d exceeds limit %d", params.NDocs, h.benchCfg.MaxDocs)
	}
	if params.TokensPerDoc > h.benchCfg.MaxTokens {
		return params, errors.Newf(errors.ErrInvalidInput, http.StatusBadRequest,
			"tokens_per_doc %d exceeds limit %d", params.TokensPerDoc, h.benchCfg.MaxTokens)
	}
	if params.Dim > h.benchCfg.MaxDim {
		return params, errors.Newf(errors.ErrInvalidInput, http.StatusBadRequest,
			"dim %d exceeds limit %d", params.Dim, h.benchCfg.MaxDim)
	}
	return params, nil
}

// parsePruneSpec splits a "qmax/dmax" bench prune setting.
func parsePruneSpec(spec string) (int, int, error) {
	parts := strings.Split(spec, "/")
	if len(parts) != 2 {
		return 0, 0, errors.Newf(errors.ErrInvalidInput, http.StatusBadRequest,
			"prune %q must be \"none\" or \"qmax/dmax\"", spec)
	}
	qMax, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, errors.Newf(errors.ErrInvalidInput, http.StatusBadRequest,
			"prune q_max %q is not an integer", parts[0])
	}
	dMax, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, errors.Newf(errors.ErrInvalidInput, http.StatusBadRequest,
			"prune d_max %q is not an integer", parts[1])
	}
	return qMax, dMax, nil
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Newf(errors.ErrInvalidInput, http.StatusBadRequest,
			"%q is not an integer", v)
	}
	return n, nil
}

// classify maps an error to a metrics outcome label.
func classify(err error) string {
	switch {
	case err == nil:
		return "ok"
	case stderrors.Is(err, errors.ErrShape):
		return "shape_error"
	case stderrors.Is(err, errors.ErrConfig):
		return "config_error"
	case stderrors.Is(err, errors.ErrCompute):
		return "compute_fault"
	case stderrors.Is(err, errors.ErrInvalidInput):
		return "invalid_input"
	case stderrors.Is(err, errors.ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}

func eventOutcome(outcome string) string {
	switch outcome {
	case "compute_fault", "timeout", "error":
		return analytics.OutcomeFault
	default:
		return analytics.OutcomeRejected
	}
}

func (h *Handler) track(ctx context.Context, event analytics.RerankEvent) {
	if h.collector == nil {
		return
	}
	event.RequestID = logger.RequestID(ctx)
	event.Timestamp = time.Now().UTC()
	h.collector.Track(event)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := sonic.ConfigDefault.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
