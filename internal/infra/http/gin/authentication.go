package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"rentalhub/internal/infra/security"
)

const principalContextKey = "rentalhub.principal"

type TokenVerifier interface {
	Verify(raw string) (security.Principal, error)
}

// AuthMiddleware resolves the bearer token when present. Handlers decide
// whether a principal is required.
type AuthMiddleware struct {
	Verifier TokenVerifier
	Logger   *slog.Logger
}

func (m AuthMiddleware) Handle(c *gin.Context) {
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" || m.Verifier == nil {
		c.Next()
		return
	}
	p, err := m.Verifier.Verify(token)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Debug("token validation failed", "error", err)
		}
		c.Next()
		return
	}
	c.Set(principalContextKey, p)
	c.Next()
}

func currentPrincipal(c *gin.Context) (security.Principal, bool) {
	val, exists := c.Get(principalContextKey)
	if !exists {
		return security.Principal{}, false
	}
	p, ok := val.(security.Principal)
	return p, ok
}

// requireUser writes a 401 envelope when the request is anonymous.
func requireUser(c *gin.Context) (security.Principal, bool) {
	p, ok := currentPrincipal(c)
	if !ok || p.UserID == "" {
		respondMessage(c, http.StatusUnauthorized, "authentication required")
		return security.Principal{}, false
	}
	return p, true
}

func extractBearerToken(header string) string {
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
