package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mycarconcierge/marketplace/internal/domain"
	"github.com/mycarconcierge/marketplace/internal/idempotency"
	"github.com/mycarconcierge/marketplace/internal/testutil/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "middleware-test-secret-0123456789"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func TestAuthMiddlewareClaims(t *testing.T) {
	SetJWTSecret(testSecret)
	SetJWTValidation("", "authenticated")
	t.Cleanup(func() { SetJWTValidation("", "") })

	userID := uuid.NewString()
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name     string
		claims   jwt.MapClaims
		status   int
		wantUser string
		wantRole string
	}{
		{
			name:     "member token",
			claims:   jwt.MapClaims{"sub": userID, "role": "authenticated", "aud": "authenticated", "exp": exp},
			status:   http.StatusOK,
			wantUser: userID,
			wantRole: "authenticated",
		},
		{
			name:     "service token without subject or audience",
			claims:   jwt.MapClaims{"role": domain.RoleService, "exp": exp},
			status:   http.StatusOK,
			wantRole: domain.RoleService,
		},
		{
			name:   "anon audience",
			claims: jwt.MapClaims{"sub": userID, "role": "anon", "aud": "anon", "exp": exp},
			status: http.StatusUnauthorized,
		},
		{
			name:   "expired",
			claims: jwt.MapClaims{"sub": userID, "role": "authenticated", "aud": "authenticated", "exp": time.Now().Add(-time.Minute).Unix()},
			status: http.StatusUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser, gotRole string
			h := AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser = UserIDFromContext(r.Context())
				gotRole = UserRoleFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
			req.Header.Set("Authorization", "Bearer "+signToken(t, tt.claims))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			require.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.wantUser, gotUser)
				assert.Equal(t, tt.wantRole, gotRole)
			}
		})
	}
}

func TestAuthMiddlewareRequiresBearer(t *testing.T) {
	SetJWTSecret(testSecret)
	h := AuthMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	for _, header := range []string{"", "Basic abc", "Bearer not.a.jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
	}
}

func TestTraceMiddlewarePropagatesID(t *testing.T) {
	var seen string
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "edge-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "edge-123", seen)
	assert.Equal(t, "edge-123", w.Header().Get("X-Trace-ID"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Trace-ID", strings.Repeat("x", maxTraceIDLength+1))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
}

func TestRecoverMiddlewareWritesProblem(t *testing.T) {
	h := TraceMiddleware(RecoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/escrow/release/x", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestIdempotencyMiddlewareKeys(t *testing.T) {
	calls := 0
	store := idempotency.NewStore(nil, memstore.New(), time.Hour)
	h := IdempotencyMiddleware(store, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))
	send := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/escrow/create", strings.NewReader(`{"packageId":"p"}`))
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusBadRequest, send(strings.Repeat("k", maxIdempotencyKeyLength+1)).Code)
	assert.Equal(t, 0, calls)

	assert.Equal(t, http.StatusCreated, send("").Code)
	assert.Equal(t, http.StatusCreated, send("").Code)
	assert.Equal(t, 2, calls)

	assert.Equal(t, http.StatusCreated, send("retry-1").Code)
	replay := send("retry-1")
	assert.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, "postgres", replay.Header().Get("X-Idempotent-Replay"))
	assert.Equal(t, 3, calls)
}

func TestScopedKeySeparatesCallers(t *testing.T) {
	assert.NotEqual(t, scopedKey("user-a", "k1"), scopedKey("user-b", "k1"))
	assert.Equal(t, "anonymous:k1", scopedKey("", "k1"))
	assert.NotEqual(t, hashRequest(http.MethodPost, "/a", []byte("1")), hashRequest(http.MethodPost, "/a", []byte("2")))
}
