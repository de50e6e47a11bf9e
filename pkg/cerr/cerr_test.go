package cerr

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"

	"github.com/kazz187/twinagents/pkg/storage"
)

func serve(h JSONHandlerFunc) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	NewJSONResponseChiMiddleware()(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	return rec
}

func TestJSONResponseMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		handler    JSONHandlerFunc
		wantStatus int
		wantBody   string
	}{
		{
			name:       "response",
			handler:    func(*http.Request) (any, error) { return map[string]string{"status": "ok"}, nil },
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
		},
		{
			name:       "coded error",
			handler:    func(*http.Request) (any, error) { return nil, NewError(NotFound, "plan not found", nil) },
			wantStatus: http.StatusNotFound,
			wantBody:   `{"code":"NotFound","message":"plan not found"}`,
		},
		{
			name: "wrapped coded error",
			handler: func(*http.Request) (any, error) {
				return nil, fmt.Errorf("lookup: %w", NewError(Unavailable, "plan store is disabled", nil))
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `{"code":"Unavailable","message":"plan store is disabled"}`,
		},
		{
			name:       "plain error hides details",
			handler:    func(*http.Request) (any, error) { return nil, errors.New("secret detail") },
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"code":"Unknown","message":"unknown error"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(tt.handler)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestJSONResponseMiddleware_NothingSet(t *testing.T) {
	rec := serve(func(*http.Request) (any, error) { return nil, nil })
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestCode(t *testing.T) {
	for c := range codeInfos {
		assert.Equal(t, c, ParseCode(c.String()))
	}
	assert.Equal(t, Unknown, ParseCode("NoSuchCode"))
	assert.Equal(t, connect.CodeNotFound, NotFound.ConnectCode())
	assert.Equal(t, Unavailable, NewCodeFromConnectError(connect.NewError(connect.CodeUnavailable, errors.New("x"))))
}

func TestWrapStorageError(t *testing.T) {
	notFound := WrapStorageError("read", "plan", fmt.Errorf("p: %w", storage.ErrNotFound))
	assert.True(t, IsCode(notFound, NotFound))
	assert.ErrorIs(t, notFound, storage.ErrNotFound)

	failed := WrapStorageError("write", "plan", errors.New("disk full"))
	assert.True(t, IsCode(failed, Internal))
	assert.ErrorContains(t, failed, "failed to write plan: disk full")
}
