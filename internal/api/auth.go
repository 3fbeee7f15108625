package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/celerix-dev/celerix-mint/pkg/ledger"
)

const callerKey = "celerix.caller"

var errNoCaller = errors.New("caller identity required")

// Auth resolves the caller of a request. With a Secret, callers present an
// HS256 bearer token whose subject is their identity. Without one, the
// identity is read from Header, which a trusted proxy must set.
type Auth struct {
	Secret []byte
	Header string
}

// Middleware rejects requests without a caller and stores it for Caller.
func (a Auth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, err := a.resolve(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": ledger.CodeUnauthorized})
			return
		}
		c.Set(callerKey, caller)
		c.Next()
	}
}

func (a Auth) resolve(r *http.Request) (ledger.Identity, error) {
	if len(a.Secret) == 0 {
		caller := strings.TrimSpace(r.Header.Get(a.Header))
		if caller == "" {
			return "", errNoCaller
		}
		return ledger.Identity(caller), nil
	}

	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		return "", errNoCaller
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("invalid bearer token: %w", err)
	}
	if claims.Subject == "" {
		return "", errNoCaller
	}
	return ledger.Identity(claims.Subject), nil
}

// Caller returns the identity resolved by Middleware.
func Caller(c *gin.Context) ledger.Identity {
	caller, _ := c.Get(callerKey)
	id, _ := caller.(ledger.Identity)
	return id
}

// SignCaller issues a bearer token for caller, valid for ttl.
func SignCaller(secret []byte, caller string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   caller,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// CORS allows browser clients from any origin to send callerHeader.
func CORS(callerHeader string) gin.HandlerFunc {
	allowed := "Content-Type, Content-Length, Accept-Encoding, Authorization, " + callerHeader
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")
		c.Writer.Header().Set("Access-Control-Allow-Headers", allowed)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
