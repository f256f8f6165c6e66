package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	jmes "github.com/jmespath/go-jmespath"
	"go.uber.org/zap"

	"webhookrelay/pkg/config"
	"webhookrelay/pkg/metrics"
	"webhookrelay/pkg/middleware"
	"webhookrelay/pkg/problems"
	"webhookrelay/pkg/tenants"
	"webhookrelay/pkg/usage"
)

// Result codes of the response envelope.
const (
	CodeOK     = 0
	CodeFailed = -1
)

// Outcome stages, used as metric and audit labels.
const (
	StageSuccess    = "success"
	StageNotFound   = "not_found"
	StageConfig     = "config"
	StageToken      = "token"
	StageRelay      = "relay"
	StageBadRequest = "bad_request"
)

// Result is the body returned for every webhook call. Data carries the upstream
// response verbatim and is only set on success.
type Result struct {
	Code    int     `json:"code"`
	Message string  `json:"message"`
	Data    *string `json:"data,omitempty"`
}

func failed(msg string) Result { return Result{Code: CodeFailed, Message: msg} }

// TokenSource yields a bearer token for a tenant credential.
type TokenSource interface {
	GetToken(ctx context.Context, cred tenants.Credential) (string, error)
}

// Forwarder relays an opaque payload to the message endpoint.
type Forwarder interface {
	Forward(ctx context.Context, token string, payload []byte) ([]byte, error)
}

// Handler serves POST /webhook/{provider}?key=<tenant key>.
type Handler struct {
	provider  string
	maxBody   int64
	dir       tenants.Directory
	tokens    TokenSource
	forwarder Forwarder
	usage     usage.Recorder
	log       *zap.SugaredLogger
	errcode   *jmes.JMESPath
}

func NewHandler(cfg config.Config, dir tenants.Directory, tokens TokenSource, fwd Forwarder, rec usage.Recorder, log *zap.SugaredLogger) (*Handler, error) {
	var expr *jmes.JMESPath
	if p := strings.TrimSpace(cfg.ErrcodePath); p != "" {
		var err error
		if expr, err = jmes.Compile(p); err != nil {
			return nil, fmt.Errorf("compile ERRCODE_PATH %q: %w", p, err)
		}
	}
	if rec == nil {
		rec = usage.Nop()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &Handler{
		provider:  strings.ToLower(cfg.Provider),
		maxBody:   maxBody,
		dir:       dir,
		tokens:    tokens,
		forwarder: fwd,
		usage:     rec,
		log:       log,
		errcode:   expr,
	}, nil
}

// Routes mounts the webhook endpoint.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/webhook/{provider}", h.serveWebhook)
}

// Relay runs one delivery: tenant lookup, credential check, token, forward.
// Every failure is a hard stop reported in-band.
func (h *Handler) Relay(ctx context.Context, key string, payload []byte) Result {
	res, _ := h.relay(ctx, key, payload)
	return res
}

func (h *Handler) relay(ctx context.Context, key string, payload []byte) (Result, string) {
	cred, err := h.dir.Lookup(ctx, key)
	if err != nil {
		if !errors.Is(err, tenants.ErrNotFound) {
			h.log.Warnw("tenant lookup", "key", key, "err", err)
		}
		return failed("key not recognized"), StageNotFound
	}
	if field := cred.MissingField(); field != "" {
		return failed(field + " missing"), StageConfig
	}
	token, err := h.tokens.GetToken(ctx, cred)
	if err != nil {
		return failed("token request failed: " + err.Error()), StageToken
	}
	body, err := h.forwarder.Forward(ctx, token, payload)
	if err != nil {
		return failed("relay failed: " + err.Error()), StageRelay
	}
	data := string(body)
	return Result{Code: CodeOK, Message: "relay succeeded", Data: &data}, StageSuccess
}

func (h *Handler) serveWebhook(w http.ResponseWriter, req *http.Request) {
	if p := chi.URLParam(req, "provider"); !strings.EqualFold(p, h.provider) {
		problems.Write(w, http.StatusNotFound, "unknown-provider", "Unknown provider", p+" is not served by this instance")
		return
	}
	ctx := req.Context()
	start := time.Now()
	key := req.URL.Query().Get("key")

	var (
		res   Result
		stage string
	)
	payload, err := io.ReadAll(http.MaxBytesReader(w, req.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			res = failed("request body too large")
		} else {
			res = failed("read request body failed")
		}
		stage = StageBadRequest
	} else {
		res, stage = h.relay(ctx, key, payload)
	}

	errcode := ""
	if stage == StageSuccess {
		errcode = h.classify(*res.Data)
		metrics.UpstreamErrcodeTotal.WithLabelValues(metrics.ErrcodeLabel(errcode)).Inc()
	}
	metrics.RequestsTotal.WithLabelValues(h.provider, stage).Inc()

	writeJSON(w, res)

	finished := time.Now()
	h.log.Infow("relay",
		"key", key,
		"result", stage,
		"message", res.Message,
		"upstream_errcode", errcode,
		"duration_ms", finished.Sub(start).Milliseconds(),
		"request_id", middleware.RequestIDFrom(ctx),
	)
	h.usage.Record(ctx, usage.Delivery{
		TenantKey:       key,
		Provider:        h.provider,
		RequestID:       middleware.RequestIDFrom(ctx),
		Result:          stage,
		Code:            res.Code,
		Message:         res.Message,
		UpstreamErrcode: errcode,
		PayloadBytes:    len(payload),
		StartedAt:       start,
		FinishedAt:      finished,
	})
}

// classify extracts the upstream errcode for metrics and logs. The response
// returned to the caller is not affected.
func (h *Handler) classify(body string) string {
	if h.errcode == nil {
		return "none"
	}
	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return "unparsed"
	}
	v, err := h.errcode.Search(doc)
	if err != nil || v == nil {
		return "none"
	}
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	}
	return "other"
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
