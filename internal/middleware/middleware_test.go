package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "dev-secret"

func signHS256(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": exp.Unix(),
		"iat": time.Now().Unix(),
	})
	s, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

// echoUser writes the authenticated user id.
var echoUser = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	id, _ := UserID(r.Context())
	w.Write([]byte(id))
})

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRequireAuth(t *testing.T) {
	auth, err := NewAuthenticator("", testSecret)
	require.NoError(t, err)
	h := auth.RequireAuth(echoUser)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"expired", "Bearer " + signHS256(t, "user_1", time.Now().Add(-time.Hour)), http.StatusUnauthorized},
		{"valid", "Bearer " + signHS256(t, "user_1", time.Now().Add(time.Hour)), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/user/data", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "user_1", rec.Body.String())
				return
			}
			body := decodeBody(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, "not authenticated", body["message"])
		})
	}
}

func TestAuthenticator_RS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemKey := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	// Env files often store the key on one line with escaped newlines.
	auth, err := NewAuthenticator(strings.ReplaceAll(pemKey, "\n", `\n`), "")
	require.NoError(t, err)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": "user_rs",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(key)
	require.NoError(t, err)

	sub, err := auth.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "user_rs", sub)

	// HS256 is refused when no secret is configured.
	_, err = auth.Verify(signHS256(t, "user_1", time.Now().Add(time.Hour)))
	assert.Error(t, err)
}

func TestAuthenticator_Unconfigured(t *testing.T) {
	auth, err := NewAuthenticator("", "")
	require.NoError(t, err)
	assert.False(t, auth.Configured())
	_, err = auth.Verify(signHS256(t, "user_1", time.Now().Add(time.Hour)))
	assert.Error(t, err)

	_, err = NewAuthenticator("not a pem", "")
	assert.Error(t, err)
}

func TestStreamAuth(t *testing.T) {
	auth, err := NewAuthenticator("", testSecret)
	require.NoError(t, err)
	valid := signHS256(t, "user_1", time.Now().Add(time.Hour))

	newRouter := func(required bool) http.Handler {
		r := chi.NewRouter()
		r.With(auth.StreamAuth(required)).Get("/api/message/{userId}", echoUser)
		return r
	}

	tests := []struct {
		name     string
		required bool
		target   string
		header   string
		status   int
	}{
		{"open by default", false, "/api/message/user_1", "", http.StatusOK},
		{"required without token", true, "/api/message/user_1", "", http.StatusUnauthorized},
		{"token in query", true, "/api/message/user_1?token=" + valid, "", http.StatusOK},
		{"token in header", true, "/api/message/user_1", "Bearer " + valid, http.StatusOK},
		{"subject mismatch", true, "/api/message/user_2?token=" + valid, "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			newRouter(tt.required).ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestHostCheck(t *testing.T) {
	h := HostCheck("api.sparklink.test")(echoUser)

	req := httptest.NewRequest(http.MethodGet, "http://api.sparklink.test:8080/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "http://evil.test/health", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMessageSendRateLimit(t *testing.T) {
	h := MessageSendRateLimit(false)(echoUser)

	send := func(userID string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/message/send", nil)
		req = req.WithContext(WithUserID(req.Context(), userID))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < messageSendBurst; i++ {
		require.Equal(t, http.StatusOK, send("alice"), "request %d", i)
	}
	assert.Equal(t, http.StatusTooManyRequests, send("alice"))
	assert.Equal(t, http.StatusOK, send("bob"), "limits are per caller")
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(echoUser).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
