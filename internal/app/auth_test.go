package app

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	appshared "github.com/odyssey-erp/expensepay/internal/shared"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func testConfig(t *testing.T) *Config {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("svc-key"), bcrypt.MinCost)
	require.NoError(t, err)
	return &Config{
		AppEnv:             "test",
		JWTSecret:          "unit-secret",
		JWTTTL:             time.Hour,
		APITokenHash:       string(hash),
		APITokenSubject:    "billing-sync",
		ElevatedRoles:      []string{"Accounts Manager"},
		RateLimitPerMinute: 1000,
	}
}

type actorEcho struct{}

func (actorEcho) MountRoutes(r chi.Router) {
	r.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		actor, _ := appshared.ActorFromContext(r.Context())
		_ = json.NewEncoder(w).Encode(map[string]string{"id": actor.ID, "method": actor.Method})
	})
}

func newTestRouter(t *testing.T, cfg *Config) (http.Handler, *Authenticator) {
	t.Helper()
	auth, err := NewAuthenticator(cfg, discardLogger)
	require.NoError(t, err)
	return NewRouter(RouterParams{Logger: discardLogger, Config: cfg, Auth: auth, ExpensesHandler: actorEcho{}}), auth
}

func whoami(t *testing.T, h http.Handler, set func(*http.Request)) (int, map[string]string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/whoami", nil)
	set(req)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var body map[string]string
	if rr.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	}
	return rr.Code, body
}

func TestAuthenticatorAcceptsElevatedBearerToken(t *testing.T) {
	h, auth := newTestRouter(t, testConfig(t))
	token, err := auth.IssueToken("u-1", []string{"Accounts Manager"})
	require.NoError(t, err)

	code, body := whoami(t, h, func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) })
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, map[string]string{"id": "u-1", "method": AuthMethodJWT}, body)
}

func TestAuthenticatorRejectsUserWithoutElevatedRole(t *testing.T) {
	h, auth := newTestRouter(t, testConfig(t))
	token, err := auth.IssueToken("u-2", []string{"Accounts User"})
	require.NoError(t, err)

	code, _ := whoami(t, h, func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) })
	require.Equal(t, http.StatusForbidden, code)
}

func TestAuthenticatorAcceptsAPIToken(t *testing.T) {
	h, _ := newTestRouter(t, testConfig(t))

	code, body := whoami(t, h, func(r *http.Request) { r.Header.Set("x-api-key", "svc-key") })
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, map[string]string{"id": "billing-sync", "method": AuthMethodAPIToken}, body)

	code, _ = whoami(t, h, func(r *http.Request) { r.Header.Set("x-api-key", "wrong") })
	require.Equal(t, http.StatusUnauthorized, code)
}

func TestAuthenticatorRejectsBadCredentials(t *testing.T) {
	cfg := testConfig(t)
	h, auth := newTestRouter(t, cfg)

	auth.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := auth.IssueToken("u-1", []string{"Accounts Manager"})
	require.NoError(t, err)
	auth.now = time.Now

	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Roles:            []string{"Accounts Manager"},
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1"},
	}).SignedString([]byte("other-secret"))
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Roles: []string{"Accounts Manager"},
	}).SignedString([]byte(cfg.JWTSecret))
	require.NoError(t, err)

	cases := map[string]string{
		"missing header":  "",
		"wrong scheme":    "Basic dTpw",
		"expired token":   "Bearer " + expired,
		"foreign secret":  "Bearer " + foreign,
		"missing subject": "Bearer " + noSubject,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			code, _ := whoami(t, h, func(r *http.Request) {
				if header != "" {
					r.Header.Set("Authorization", header)
				}
			})
			require.Equal(t, http.StatusUnauthorized, code)
		})
	}
}

func TestAPITokenDisabledWithoutHash(t *testing.T) {
	cfg := testConfig(t)
	cfg.APITokenHash = ""
	h, _ := newTestRouter(t, cfg)

	code, _ := whoami(t, h, func(r *http.Request) { r.Header.Set("x-api-key", "svc-key") })
	require.Equal(t, http.StatusUnauthorized, code)
}
