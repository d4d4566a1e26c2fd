package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/smileperks/cardhub/internal/session"
)

// Gin context keys shared by the API groups.
const (
	ContextPrincipal = "principal"
	ContextSessionID = "sessionID"
)

// ErrUnauthorized is returned by token parsers for tokens that must be rejected.
var ErrUnauthorized = errors.New("unauthorized")

// Principal is the caller resolved from a bearer token.
type Principal struct {
	Kind      session.Kind
	SubjectID uint64
	SessionID string
}

// TokenParser turns a raw bearer token into a principal.
type TokenParser func(token string) (Principal, error)

// AccessAuthMiddleware authenticates bearer tokens and checks that their session is still live.
func AccessAuthMiddleware(parse TokenParser, sessions *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, message := BearerToken(c)
		if message != "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
			return
		}

		principal, errParse := parse(token)
		if errParse != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		if sessions != nil {
			_, errSession := sessions.Validate(c.Request.Context(), principal.SessionID, principal.Kind, principal.SubjectID)
			switch {
			case errSession == nil:
			case session.IsNotFound(errSession):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
				return
			default:
				log.WithError(errSession).Error("access auth middleware: session lookup failed")
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "authentication service error"})
				return
			}
		}

		c.Set(ContextPrincipal, principal)
		c.Set(ContextSessionID, principal.SessionID)
		c.Next()
	}
}

// BearerToken extracts the token of an Authorization header. A non-empty
// message describes why the header was rejected.
func BearerToken(c *gin.Context) (string, string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", "missing authorization header"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader {
		return "", "invalid authorization format"
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// PrincipalFromContext returns the principal stored by AccessAuthMiddleware.
func PrincipalFromContext(c *gin.Context) (Principal, bool) {
	value, ok := c.Get(ContextPrincipal)
	if !ok {
		return Principal{}, false
	}
	principal, ok := value.(Principal)
	return principal, ok
}

// SessionIDFromContext returns the session id of the authenticated request.
func SessionIDFromContext(c *gin.Context) string {
	return c.GetString(ContextSessionID)
}
