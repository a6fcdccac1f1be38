package server

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/ruuviproxy/internal/authorization"
	obscontext "github.com/smallbiznis/ruuviproxy/internal/observability/context"
	"github.com/smallbiznis/ruuviproxy/internal/observability/logger"
)

const (
	contextRoleKey      = "auth_role"
	contextPrincipalKey = "auth_principal"
	contextClaimsKey    = "auth_claims"
	contextGatewayKey   = "gateway_id"

	headerAPIKey         = "X-API-Key"
	headerIdentityClaims = "X-Identity-Claims"
	headerCallerIdentity = "X-Caller-Identity"

	messageRetrievalAuth = "Valid authentication is required for local data access"
	messageIngestAuth    = "Valid authentication is required"
	messageAdminAuth     = "Unauthorized access"
)

// identityClaims is the subset of identity-provider claims used for
// attribution.
type identityClaims struct {
	Sub      string `json:"sub"`
	Username string `json:"username"`
}

func (c identityClaims) subject() string {
	if s := strings.TrimSpace(c.Sub); s != "" {
		return s
	}
	return strings.TrimSpace(c.Username)
}

// IngestAuth checks the gateway key when INGEST_API_KEY is configured.
// Without a configured key every gateway is accepted.
func (s *Server) IngestAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := s.cfg.Auth.IngestAPIKey
		if expected != "" {
			presented := strings.TrimSpace(c.GetHeader(headerAPIKey))
			if presented == "" {
				presented = bearerToken(c.GetHeader("Authorization"))
			}
			if !constantTimeEqual(presented, expected) {
				logger.FromContext(c.Request.Context()).Warn("ingest authentication failed")
				AbortWithError(c, requestError(ErrUnauthorized, messageIngestAuth))
				return
			}
		}
		setIdentity(c, authorization.RoleGateway, "gateway")
		c.Next()
	}
}

// RetrievalAuthRequired accepts an API key, identity claims or a caller
// identity header. The first credential that checks out wins, so a wrong key
// still falls through to the headers. X-Identity-Claims and X-Caller-Identity
// are unsigned: they must be set by a trusted front proxy that strips any
// client-supplied copies.
func (s *Server) RetrievalAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if principal, ok := s.retrievalAPIKeyPrincipal(c); ok {
			setIdentity(c, authorization.RoleReader, principal)
			c.Next()
			return
		}

		if claims, ok := parseIdentityClaims(c.GetHeader(headerIdentityClaims)); ok {
			c.Set(contextClaimsKey, claims)
			setIdentity(c, authorization.RoleReader, claims.subject())
			c.Next()
			return
		}

		if caller := strings.TrimSpace(c.GetHeader(headerCallerIdentity)); caller != "" {
			setIdentity(c, authorization.RoleReader, caller)
			c.Next()
			return
		}

		logger.FromContext(c.Request.Context()).Warn("retrieval request without valid authentication")
		AbortWithError(c, requestError(ErrUnauthorized, messageRetrievalAuth))
	}
}

func (s *Server) retrievalAPIKeyPrincipal(c *gin.Context) (string, bool) {
	presented := strings.TrimSpace(c.GetHeader(headerAPIKey))
	if presented == "" {
		return "", false
	}
	if expected := s.cfg.Auth.RetrievalAPIKey; expected != "" && !constantTimeEqual(presented, expected) {
		return "", false
	}
	return "api-key:" + lastChars(presented, 8), true
}

// AdminAuthRequired guards the configuration API. An unset ADMIN_API_KEY
// rejects every request.
func (s *Server) AdminAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.FromContext(c.Request.Context())
		presented := strings.TrimSpace(c.GetHeader(headerAPIKey))
		expected := s.cfg.Auth.AdminAPIKey

		switch {
		case presented == "":
			log.Warn("admin request without api key")
		case expected == "":
			log.Error("admin api key not configured")
		case !constantTimeEqual(presented, expected):
			log.Warn("invalid admin api key")
		default:
			if claims, ok := parseIdentityClaims(c.GetHeader(headerIdentityClaims)); ok {
				c.Set(contextClaimsKey, claims)
			}
			setIdentity(c, authorization.RoleAdmin, "api-key:"+lastChars(presented, 8))
			c.Next()
			return
		}

		AbortWithError(c, &AdminError{Status: http.StatusUnauthorized, Message: messageAdminAuth})
	}
}

func setIdentity(c *gin.Context, role, principal string) {
	c.Set(contextRoleKey, role)
	c.Set(contextPrincipalKey, principal)
	ctx := obscontext.WithPrincipal(c.Request.Context(), principal)
	c.Request = c.Request.WithContext(ctx)
}

// auditIdentity names the caller in the configuration audit log.
func auditIdentity(c *gin.Context) string {
	if raw, ok := c.Get(contextClaimsKey); ok {
		if claims, ok := raw.(identityClaims); ok && claims.subject() != "" {
			return claims.subject()
		}
	}
	key := strings.TrimSpace(c.GetHeader(headerAPIKey))
	if key == "" {
		key = "unknown"
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "api-key:" + lastChars(key, 8) + "@" + ip
}

// parseIdentityClaims accepts base64 encoded or raw JSON claims.
func parseIdentityClaims(raw string) (identityClaims, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return identityClaims{}, false
	}

	payload := []byte(raw)
	if !strings.HasPrefix(raw, "{") {
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			decoded, err = base64.RawURLEncoding.DecodeString(raw)
			if err != nil {
				return identityClaims{}, false
			}
		}
		payload = decoded
	}

	var claims identityClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return identityClaims{}, false
	}
	if claims.subject() == "" {
		return identityClaims{}, false
	}
	return claims, true
}

func bearerToken(header string) string {
	parts := strings.Fields(strings.TrimSpace(header))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func constantTimeEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func lastChars(value string, n int) string {
	if len(value) <= n {
		return value
	}
	return value[len(value)-n:]
}
