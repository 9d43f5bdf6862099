package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/benvon/process-rest/internal/cors"
	logpkg "github.com/benvon/process-rest/internal/logger"
	"github.com/benvon/process-rest/internal/validation"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// PolicySource returns the policy currently in force. *cors.Holder
// implements it.
type PolicySource interface {
	Load() *cors.Policy
}

// CORSEvaluateRequest describes a hypothetical request. Nil fields mean the
// corresponding header is absent.
type CORSEvaluateRequest struct {
	Origin         *string `json:"origin"`
	Method         string  `json:"method" validate:"required,max=32"`
	RequestMethod  *string `json:"request_method"`
	RequestHeaders *string `json:"request_headers"`
}

// CORSEvaluateResponse is the decision for a CORSEvaluateRequest together
// with the policy that produced it.
type CORSEvaluateResponse struct {
	Authorized       bool              `json:"authorized"`
	NormalizedDomain string            `json:"normalized_domain"`
	Headers          map[string]string `json:"headers"`
	Policy           CORSPolicyView    `json:"policy"`
}

// CORSPolicyView is the externally visible form of a cors.Policy.
type CORSPolicyView struct {
	AllowDomains    []string `json:"allow_domains"`
	PrivatePrefixes []string `json:"private_prefixes"`
	Relaxed         bool     `json:"relaxed"`
	MaxAgeSeconds   int      `json:"max_age_seconds"`
}

// NewCORSPolicyView describes p.
func NewCORSPolicyView(p *cors.Policy) CORSPolicyView {
	return CORSPolicyView{
		AllowDomains:    p.AllowDomains(),
		PrivatePrefixes: p.PrivatePrefixes(),
		Relaxed:         p.Relaxed(),
		MaxAgeSeconds:   int(p.MaxAge().Seconds()),
	}
}

// ToCORSRequest converts the request body to a cors.Request.
func (req CORSEvaluateRequest) ToCORSRequest() cors.Request {
	headers := make(map[string]string, 3)
	if req.Origin != nil {
		headers[cors.HeaderOrigin] = *req.Origin
	}
	if req.RequestMethod != nil {
		headers[cors.HeaderRequestMethod] = *req.RequestMethod
	}
	if req.RequestHeaders != nil {
		headers[cors.HeaderRequestHeaders] = *req.RequestHeaders
	}
	return cors.StaticRequest{HTTPMethod: req.Method, Headers: headers}
}

// EvaluateCORS runs req against p.
func EvaluateCORS(p *cors.Policy, req CORSEvaluateRequest) CORSEvaluateResponse {
	d, ok := p.Evaluate(req.ToCORSRequest())
	origin := cors.NullOrigin
	if req.Origin != nil {
		origin = *req.Origin
	}
	return CORSEvaluateResponse{
		Authorized:       ok,
		NormalizedDomain: cors.NormalizeDomain(origin),
		Headers:          d.Map(),
		Policy:           NewCORSPolicyView(p),
	}
}

// CORSEvaluateHandler answers "would this request be authorized?" for
// operators debugging the allow list.
type CORSEvaluateHandler struct {
	policy PolicySource
	log    *zap.Logger
}

// NewCORSEvaluateHandler creates a diagnostics handler.
func NewCORSEvaluateHandler(policy PolicySource, log *zap.Logger) *CORSEvaluateHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CORSEvaluateHandler{policy: policy, log: log}
}

// RegisterRoutes registers the diagnostics route on r.
func (h *CORSEvaluateHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/cors/evaluate", h.Evaluate).Methods(http.MethodPost)
}

// Evaluate handles POST /api/v1/cors/evaluate.
func (h *CORSEvaluateHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req CORSEvaluateRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondJSONError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large", "Request body exceeds the size limit")
			return
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid JSON body")
		return
	}
	req.Method = validation.SanitizeText(req.Method)
	if err := validation.Validate.Struct(req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "method is required and must be at most 32 characters")
		return
	}

	resp := EvaluateCORS(h.policy.Load(), req)
	origin := ""
	if req.Origin != nil {
		origin = *req.Origin
	}
	h.log.Debug("cors_evaluated",
		zap.String("origin", logpkg.SanitizeOrigin(origin)),
		zap.String("method", logpkg.SanitizeString(req.Method, 32)),
		zap.Bool("authorized", resp.Authorized),
	)
	respondJSON(w, http.StatusOK, resp)
}
