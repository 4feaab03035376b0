package middleware_test

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammerola/stockledger/internal/core/domain"
	"github.com/ammerola/stockledger/internal/handlers/middleware"
	"github.com/ammerola/stockledger/internal/pkg/auth"
	"github.com/ammerola/stockledger/internal/pkg/logger"
	"github.com/ammerola/stockledger/test/helpers"
)

func TestRequestID(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, middleware.RequestIDFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	})

	wrapped := middleware.RequestID(handler)

	tests := []struct {
		name              string
		existingRequestID string
		validateResponse  func(*testing.T, *http.Response)
	}{
		{
			name:              "generates_new_request_id",
			existingRequestID: "",
			validateResponse: func(t *testing.T, resp *http.Response) {
				requestID := resp.Header.Get("X-Request-ID")
				assert.NotEmpty(t, requestID)
				assert.Len(t, requestID, 36) // UUID length
			},
		},
		{
			name:              "uses_existing_request_id",
			existingRequestID: "existing-id-123",
			validateResponse: func(t *testing.T, resp *http.Response) {
				assert.Equal(t, "existing-id-123", resp.Header.Get("X-Request-ID"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			if tt.existingRequestID != "" {
				req.Header.Set("X-Request-ID", tt.existingRequestID)
			}
			w := httptest.NewRecorder()

			wrapped.ServeHTTP(w, req)

			tt.validateResponse(t, w.Result())
		})
	}
}

func TestLogger_RecordsStatusAndActor(t *testing.T) {
	buf := &bytes.Buffer{}
	l := logger.NewLogger(&logger.LogConfig{Level: "debug", Format: "json", Writer: buf})
	verifier := newVerifier(t)
	actor := uuid.New()
	token := issue(t, verifier, actor, domain.RoleUser)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"conflict"}`))
	})
	wrapped := middleware.Chain(handler,
		middleware.RequestID,
		middleware.Logger(l.Logger),
		middleware.Auth(verifier, l.Logger),
	)

	req := httptest.NewRequest("PUT", "/api/v1/purchase-orders/1/receive", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	wrapped.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "request completed", entry["msg"])
	assert.Equal(t, "WARN", entry["severity"])
	assert.Equal(t, float64(http.StatusConflict), entry["status_code"])
	assert.Equal(t, actor.String(), entry["actor_id"])
	assert.Equal(t, "PUT", entry["method"])
	assert.NotEmpty(t, entry["request_id"])
}

func TestRecovery(t *testing.T) {
	l := helpers.TestLogger()

	tests := []struct {
		name           string
		handler        http.HandlerFunc
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "recovers_from_panic",
			handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				panic("test panic")
			}),
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   "INTERNAL_ERROR",
		},
		{
			name: "passes_through_normal_response",
			handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("normal response"))
			}),
			expectedStatus: http.StatusOK,
			expectedBody:   "normal response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := middleware.Recovery(l)(tt.handler)

			req := httptest.NewRequest("GET", "/test", nil)
			w := httptest.NewRecorder()

			wrapped.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
		})
	}
}

func TestRateLimit(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Allow 2 requests per second
	wrapped := middleware.RateLimit(2, time.Second)(handler)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = "127.0.0.1:1234"
		w := httptest.NewRecorder()

		wrapped.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	w := httptest.NewRecorder()

	wrapped.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	// Different IP should work
	req.RemoteAddr = "192.168.1.1:5678"
	w = httptest.NewRecorder()

	wrapped.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORS(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name           string
		allowedOrigins []string
		requestOrigin  string
		requestMethod  string
		expectedStatus int
		checkHeaders   func(*testing.T, http.Header)
	}{
		{
			name:           "allows_wildcard_origin",
			allowedOrigins: []string{"*"},
			requestOrigin:  "https://example.com",
			requestMethod:  "GET",
			expectedStatus: http.StatusOK,
			checkHeaders: func(t *testing.T, headers http.Header) {
				assert.Equal(t, "https://example.com", headers.Get("Access-Control-Allow-Origin"))
			},
		},
		{
			name:           "allows_specific_origin",
			allowedOrigins: []string{"https://app.example.com", "https://admin.example.com"},
			requestOrigin:  "https://app.example.com",
			requestMethod:  "GET",
			expectedStatus: http.StatusOK,
			checkHeaders: func(t *testing.T, headers http.Header) {
				assert.Equal(t, "https://app.example.com", headers.Get("Access-Control-Allow-Origin"))
			},
		},
		{
			name:           "handles_preflight_request",
			allowedOrigins: []string{"*"},
			requestOrigin:  "https://example.com",
			requestMethod:  "OPTIONS",
			expectedStatus: http.StatusNoContent,
			checkHeaders: func(t *testing.T, headers http.Header) {
				assert.Equal(t, "https://example.com", headers.Get("Access-Control-Allow-Origin"))
				assert.Contains(t, headers.Get("Access-Control-Allow-Headers"), "Idempotency-Key")
			},
		},
		{
			name:           "blocks_unallowed_origin",
			allowedOrigins: []string{"https://allowed.com"},
			requestOrigin:  "https://notallowed.com",
			requestMethod:  "GET",
			expectedStatus: http.StatusOK,
			checkHeaders: func(t *testing.T, headers http.Header) {
				assert.Empty(t, headers.Get("Access-Control-Allow-Origin"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := middleware.CORS(tt.allowedOrigins)(handler)

			req := httptest.NewRequest(tt.requestMethod, "/test", nil)
			req.Header.Set("Origin", tt.requestOrigin)
			w := httptest.NewRecorder()

			wrapped.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			tt.checkHeaders(t, w.Header())
		})
	}
}

func TestTimeout(t *testing.T) {
	tests := []struct {
		name           string
		timeout        time.Duration
		handlerDelay   time.Duration
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "completes_within_timeout",
			timeout:        200 * time.Millisecond,
			handlerDelay:   10 * time.Millisecond,
			expectedStatus: http.StatusCreated,
			expectedBody:   "success",
		},
		{
			name:           "times_out",
			timeout:        50 * time.Millisecond,
			handlerDelay:   500 * time.Millisecond,
			expectedStatus: http.StatusGatewayTimeout,
			expectedBody:   "Request timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-time.After(tt.handlerDelay):
					w.Header().Set("X-Handler", "done")
					w.WriteHeader(http.StatusCreated)
					w.Write([]byte("success"))
				case <-r.Context().Done():
					return
				}
			})

			wrapped := middleware.Timeout(tt.timeout)(handler)

			req := httptest.NewRequest("GET", "/test", nil)
			w := httptest.NewRecorder()

			wrapped.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
		})
	}
}

func TestCompression(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("sku,name,stock\nA-1,Widget,10\n"))
	})
	wrapped := middleware.Compression(handler)

	req := httptest.NewRequest("GET", "/api/v1/export/products", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()

	wrapped.ServeHTTP(w, req)

	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	gz, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, "sku,name,stock\nA-1,Widget,10\n", string(body))
}

func newVerifier(t *testing.T) *auth.Verifier {
	t.Helper()
	v, err := auth.NewVerifier("middleware-test-secret", "", "")
	require.NoError(t, err)
	return v
}

func issue(t *testing.T, v *auth.Verifier, id uuid.UUID, role domain.Role) string {
	t.Helper()
	token, err := v.Issue(auth.Principal{UserID: id, Role: role}, time.Hour)
	require.NoError(t, err)
	return token
}

func TestAuth(t *testing.T) {
	v := newVerifier(t)
	userID := uuid.New()
	valid := issue(t, v, userID, domain.RoleUser)
	expired, err := v.Issue(auth.Principal{UserID: userID}, -time.Hour)
	require.NoError(t, err)

	var seen *auth.Principal
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = middleware.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	wrapped := middleware.Auth(v, helpers.TestLogger())(handler)

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "valid_token", header: "Bearer " + valid, wantStatus: http.StatusOK},
		{name: "lowercase_scheme", header: "bearer " + valid, wantStatus: http.StatusOK},
		{name: "missing_header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "basic_scheme", header: "Basic dXNlcjpwYXNz", wantStatus: http.StatusUnauthorized},
		{name: "expired_token", header: "Bearer " + expired, wantStatus: http.StatusUnauthorized},
		{name: "garbage_token", header: "Bearer abc", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest("GET", "/api/v1/products", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			wrapped.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				require.NotNil(t, seen)
				assert.Equal(t, userID, seen.UserID)
				return
			}
			assert.Nil(t, seen)
			assert.Contains(t, w.Body.String(), `"code":"UNAUTHORIZED"`)
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	v := newVerifier(t)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	wrapped := middleware.Chain(handler, middleware.Auth(v, helpers.TestLogger()), middleware.RequireAdmin)

	tests := []struct {
		name       string
		role       domain.Role
		wantStatus int
	}{
		{name: "admin_allowed", role: domain.RoleAdmin, wantStatus: http.StatusNoContent},
		{name: "user_forbidden", role: domain.RoleUser, wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("DELETE", "/api/v1/users/"+uuid.NewString(), nil)
			req.Header.Set("Authorization", "Bearer "+issue(t, v, uuid.New(), tt.role))
			w := httptest.NewRecorder()

			wrapped.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}

	t.Run("without_auth", func(t *testing.T) {
		w := httptest.NewRecorder()
		middleware.RequireAdmin(handler).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

