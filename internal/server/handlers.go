package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/uabootstrap/internal/endpoint"
	"github.com/wolfeidau/uabootstrap/internal/identity"
	"github.com/wolfeidau/uabootstrap/internal/pki"
	"github.com/wolfeidau/uabootstrap/internal/serverconfig"
	"github.com/wolfeidau/uabootstrap/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const sessionSuffix = "/session"

// EndpointDescription is the discovery view of one endpoint.
type EndpointDescription struct {
	EndpointURL                  string   `json:"endpoint_url"`
	SecurityPolicy               string   `json:"security_policy"`
	SecurityPolicyURI            string   `json:"security_policy_uri"`
	SecurityMode                 string   `json:"security_mode"`
	UserTokenPolicies            []string `json:"user_token_policies"`
	ServerCertificate            []byte   `json:"server_certificate"`
	ServerCertificateFingerprint string   `json:"server_certificate_fingerprint"`
}

// DiscoveryResponse lists the server identity and its endpoints.
type DiscoveryResponse struct {
	ApplicationURI  string                 `json:"application_uri"`
	ApplicationName string                 `json:"application_name"`
	ProductURI      string                 `json:"product_uri"`
	BuildInfo       serverconfig.BuildInfo `json:"build_info"`
	Endpoints       []EndpointDescription  `json:"endpoints"`
}

// SessionResponse is returned when a caller is authenticated.
type SessionResponse struct {
	SessionID string             `json:"session_id"`
	Identity  *identity.Identity `json:"identity"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Describe builds the discovery view of a server configuration.
func Describe(cfg *serverconfig.ServerConfig) DiscoveryResponse {
	endpoints := cfg.Endpoints()

	resp := DiscoveryResponse{
		ApplicationURI:  cfg.ApplicationURI(),
		ApplicationName: cfg.ApplicationName(),
		ProductURI:      cfg.ProductURI(),
		BuildInfo:       cfg.BuildInfo(),
		Endpoints:       make([]EndpointDescription, 0, len(endpoints)),
	}

	for _, d := range endpoints {
		resp.Endpoints = append(resp.Endpoints, describeEndpoint(d))
	}

	return resp
}

func describeEndpoint(d endpoint.Descriptor) EndpointDescription {
	tokens := make([]string, 0, len(d.TokenPolicies))
	for _, t := range d.TokenPolicies {
		tokens = append(tokens, string(t))
	}

	return EndpointDescription{
		EndpointURL:                  d.EndpointURL(),
		SecurityPolicy:               string(d.PolicyMode.Policy),
		SecurityPolicyURI:            d.PolicyMode.Policy.URI(),
		SecurityMode:                 string(d.PolicyMode.Mode),
		UserTokenPolicies:            tokens,
		ServerCertificate:            d.Certificate.Raw,
		ServerCertificateFingerprint: pki.Fingerprint(d.Certificate),
	}
}

func (s *Server) discoveryHandler() http.Handler {
	resp := Describe(s.cfg)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, resp)
	})
}

func (s *Server) sessionHandler() http.Handler {
	chain := s.cfg.IdentityChain()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		cred := credentialFromRequest(r)

		spanCtx, span := telemetry.Tracer().Start(ctx, "session.identify")
		id, err := chain.Identify(spanCtx, cred)
		span.SetAttributes(
			attribute.String("credential.kind", string(cred.Kind())),
			attribute.Bool("accepted", err == nil),
		)
		span.End()

		if err != nil {
			zerolog.Ctx(ctx).Info().
				Str("credential", string(cred.Kind())).
				Msg("Session rejected")
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}

		resp := SessionResponse{
			SessionID: uuid.NewString(),
			Identity:  id,
		}

		zerolog.Ctx(ctx).Info().
			Str("session_id", resp.SessionID).
			Str("credential", string(id.Kind)).
			Str("name", id.Name).
			Msg("Session created")

		writeJSON(w, http.StatusOK, resp)
	})
}

// credentialFromRequest maps the request to a single credential. An Authorization header
// wins over a client certificate and never falls back to another credential type.
func credentialFromRequest(r *http.Request) identity.Credential {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
			return identity.IssuedToken{Token: strings.TrimSpace(token)}
		}
		if username, password, ok := r.BasicAuth(); ok {
			return identity.UsernamePassword{Username: username, Password: password}
		}
		// an unrecognised scheme must not authenticate as anyone
		return identity.UsernamePassword{}
	}

	if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
		peers := r.TLS.PeerCertificates
		return identity.X509Certificate{Certificate: peers[0], Chain: peers}
	}

	return identity.Anonymous{}
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		next.ServeHTTP(w, r)

		attrs := metric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.String("route", r.Pattern),
		)
		m := telemetry.GetMetrics()
		m.HTTPRequestsTotal.Add(r.Context(), 1, attrs)
		m.HTTPRequestDuration.Record(r.Context(), float64(time.Since(started).Microseconds())/1000, attrs)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
