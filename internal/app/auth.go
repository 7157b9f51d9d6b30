package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/expensepay/internal/platform/httpx"
	appshared "github.com/odyssey-erp/expensepay/internal/shared"
)

const apiKeyHeader = "x-api-key"

// Authentication methods recorded on the request actor.
const (
	AuthMethodJWT      = "jwt"
	AuthMethodAPIToken = "api_token"
)

// Claims is the bearer token payload.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator resolves the caller of every API request, either from a
// service API token or from a signed bearer token.
type Authenticator struct {
	secret        []byte
	tokenHash     []byte
	tokenSubject  string
	elevatedRoles []string
	ttl           time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// NewAuthenticator builds the authenticator from configuration.
func NewAuthenticator(cfg *Config, logger *slog.Logger) (*Authenticator, error) {
	if cfg == nil || cfg.JWTSecret == "" {
		return nil, errors.New("app: jwt secret required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Authenticator{
		secret:        []byte(cfg.JWTSecret),
		tokenSubject:  cfg.APITokenSubject,
		elevatedRoles: cfg.ElevatedRoles,
		ttl:           cfg.JWTTTL,
		logger:        logger,
		now:           time.Now,
	}
	if cfg.APITokenHash != "" {
		a.tokenHash = []byte(cfg.APITokenHash)
	}
	if a.tokenSubject == "" {
		a.tokenSubject = "integration"
	}
	if a.ttl <= 0 {
		a.ttl = 12 * time.Hour
	}
	return a, nil
}

// IssueToken signs a bearer token for subject carrying roles.
func (a *Authenticator) IssueToken(subject string, roles []string) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("app: token subject required")
	}
	now := a.now()
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Middleware rejects requests without a valid API token or bearer token and
// stores the resolved actor in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if key := r.Header.Get(apiKeyHeader); key != "" {
			if !a.validAPIKey(key) {
				a.logger.Warn("invalid api token", slog.String("path", r.URL.Path))
				httpx.RespondError(w, httpx.Tag(httpx.ErrUnauthorized, errors.New("Invalid API token")))
				return
			}
			actor := appshared.Actor{ID: a.tokenSubject, Method: AuthMethodAPIToken}
			next.ServeHTTP(w, r.WithContext(appshared.ContextWithActor(r.Context(), actor)))
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			httpx.RespondError(w, httpx.Tag(httpx.ErrUnauthorized, errors.New("Authorization header required")))
			return
		}
		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			httpx.RespondError(w, httpx.Tag(httpx.ErrUnauthorized, errors.New("Authorization header format must be Bearer {token}")))
			return
		}
		claims, err := a.parse(parts[1])
		if err != nil {
			a.logger.Warn("invalid bearer token", slog.String("path", r.URL.Path), slog.Any("error", err))
			httpx.RespondError(w, httpx.Tag(httpx.ErrUnauthorized, err))
			return
		}
		actor := appshared.Actor{ID: claims.Subject, Roles: claims.Roles, Method: AuthMethodJWT}
		next.ServeHTTP(w, r.WithContext(appshared.ContextWithActor(r.Context(), actor)))
	})
}

// RequireElevated allows API token callers and users holding one of the
// configured elevated roles.
func (a *Authenticator) RequireElevated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := appshared.ActorFromContext(r.Context())
		if !ok {
			httpx.RespondError(w, httpx.Tag(httpx.ErrUnauthorized, errors.New("authentication required")))
			return
		}
		if actor.Method == AuthMethodAPIToken || actor.HasRole(a.elevatedRoles...) {
			next.ServeHTTP(w, r)
			return
		}
		a.logger.Warn("elevated role required", slog.String("actor", actor.ID), slog.String("path", r.URL.Path))
		httpx.RespondError(w, httpx.Tag(httpx.ErrForbidden,
			fmt.Errorf("one of the roles %s is required", strings.Join(a.elevatedRoles, ", "))))
	})
}

func (a *Authenticator) validAPIKey(key string) bool {
	if len(a.tokenHash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(a.tokenHash, []byte(key)) == nil
}

func (a *Authenticator) parse(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, errors.New("Token has expired")
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, errors.New("Token not valid yet")
		}
		return nil, errors.New("Invalid token")
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("Invalid token claims")
	}
	return claims, nil
}
