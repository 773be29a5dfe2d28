package logger

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	httpmiddleware "github.com/wolfeidau/uabootstrap/internal/http"
)

func TestHTTPRequests(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	var ctxLogger *zerolog.Logger
	handler := httpmiddleware.Chain(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctxLogger = zerolog.Ctx(r.Context())
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("unauthorized"))
		}),
		httpmiddleware.ClientIPMiddleware(false),
		HTTPRequests(log),
	)

	r := httptest.NewRequest(http.MethodPost, "/example/session", nil)
	r.RemoteAddr = "10.0.0.9:5000"
	handler.ServeHTTP(httptest.NewRecorder(), r)

	require.NotNil(t, ctxLogger)
	assert.NotEqual(t, zerolog.Disabled, ctxLogger.GetLevel())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "http request", entry["message"])
	assert.Equal(t, "POST", entry["method"])
	assert.Equal(t, "/example/session", entry["path"])
	assert.Equal(t, "10.0.0.9", entry["addr"])
	assert.EqualValues(t, 401, entry["status"])
	assert.EqualValues(t, len("unauthorized"), entry["bytes"])
}

func TestSetup(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, Setup(false).GetLevel())
	assert.Equal(t, zerolog.DebugLevel, Setup(true).GetLevel())
}
