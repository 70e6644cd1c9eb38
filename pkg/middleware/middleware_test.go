package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m8test/m8link/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// helper: simple next handler that writes status and body
func okHandler(status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func captureLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestLogger_RequestID(t *testing.T) {
	logger, buf := captureLogger()
	mw := Logger(logger)

	// Generated when not provided
	rr := httptest.NewRecorder()
	mw(okHandler(http.StatusOK, "ok")).ServeHTTP(rr, httptest.NewRequest("GET", "/path", nil))
	assert.Len(t, rr.Header().Get(HeaderRequestID), 8, "generated id is a nanoid")

	// Provided id passes through
	req := httptest.NewRequest("GET", "/path", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	rr = httptest.NewRecorder()
	mw(okHandler(http.StatusCreated, "created")).ServeHTTP(rr, req)
	assert.Equal(t, "req-123", rr.Header().Get(HeaderRequestID))
	assert.Contains(t, buf.String(), "request_id=req-123")

	// Downstream handlers see the id in their context
	req = httptest.NewRequest("GET", "/ctx", nil)
	req.Header.Set(HeaderRequestID, "req-ctx")
	rr = httptest.NewRecorder()
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(RequestID(r.Context())))
	})).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "req-ctx", rr.Body.String())
}

func TestLogger_LevelByStatus(t *testing.T) {
	cases := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "level=DEBUG"},
		{http.StatusNotFound, "level=WARN"},
		{http.StatusBadGateway, "level=ERROR"},
	}

	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			logger, buf := captureLogger()
			rr := httptest.NewRecorder()
			Logger(logger)(okHandler(tc.status, "")).ServeHTTP(rr, httptest.NewRequest("POST", "/command/execute", nil))
			assert.Contains(t, buf.String(), tc.level)
			assert.Contains(t, buf.String(), "path=/command/execute")
		})
	}
}

func TestRecovery(t *testing.T) {
	logger, buf := captureLogger()
	mw := Recovery(logger)

	t.Run("string panic", func(t *testing.T) {
		rr := httptest.NewRecorder()
		mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		})).ServeHTTP(rr, httptest.NewRequest("GET", "/panic", nil))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		env, err := common.DecodeEnvelope(rr.Body.Bytes())
		require.NoError(t, err)
		assert.False(t, env.Success)
		assert.Equal(t, "internal error", env.Message)
	})

	t.Run("error panic", func(t *testing.T) {
		rr := httptest.NewRecorder()
		mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic(assert.AnError)
		})).ServeHTTP(rr, httptest.NewRequest("GET", "/panic", nil))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		env, err := common.DecodeEnvelope(rr.Body.Bytes())
		require.NoError(t, err)
		assert.Equal(t, assert.AnError.Error(), env.Message)
	})

	assert.Contains(t, buf.String(), "panic recovered")
}

func TestChainOrder(t *testing.T) {
	order := []string{}

	mw1 := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "mw1-before")
			next.ServeHTTP(w, r)
			order = append(order, "mw1-after")
		})
	}
	mw2 := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "mw2-before")
			next.ServeHTTP(w, r)
			order = append(order, "mw2-after")
		})
	}

	chained := Chain(mw1, mw2)
	rr := httptest.NewRecorder()
	chained(okHandler(http.StatusOK, "ok")).ServeHTTP(rr, httptest.NewRequest("GET", "/chain", nil))

	assert.Equal(t, []string{"mw1-before", "mw2-before", "mw2-after", "mw1-after"}, order)
	assert.Equal(t, http.StatusOK, rr.Code)
}
