package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgerunner/engine/pkg/engine"
	"github.com/edgerunner/engine/pkg/engine/coordinator"
	"github.com/edgerunner/engine/pkg/engine/router"
	"github.com/edgerunner/engine/pkg/engine/state"
	"github.com/edgerunner/engine/pkg/logging"
)

type fakeEngine struct {
	result   engine.Result
	captured *engine.Request
}

func (f *fakeEngine) Process(ctx context.Context, request engine.Request, capability engine.Capability, preferred string) engine.Result {
	if f.captured != nil {
		*f.captured = request
	}
	return f.result
}

func (f *fakeEngine) ProcessStream(ctx context.Context, request engine.Request, capability engine.Capability, preferred string) engine.ResultStream {
	return nil
}

func (f *fakeEngine) Track(ctx context.Context, requestID string) (context.Context, func()) {
	return ctx, func() {}
}

func (f *fakeEngine) Cancel(requestID string) bool { return requestID == "known" }

func newTestHandler(t *testing.T, result engine.Result) *Handler {
	t.Helper()
	log := logging.NewLogrusAdapter(logrus.New())
	pub := state.New()
	coord := coordinator.New(log, &fakeEngine{result: result}, pub, nil)
	r := router.New(log, coord)
	return NewHandler(log, r, pub)
}

func TestHandleChat_ReturnsJSONResult(t *testing.T) {
	h := newTestHandler(t, engine.Result{Outputs: map[string]any{"text": "hi there"}})

	body, _ := json.Marshal(requestBody{Inputs: map[string]any{"text": "hello"}})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	outputs := decoded["outputs"].(map[string]any)
	assert.Equal(t, "hi there", outputs["text"])
}

func TestHandleChat_MissingTextReturnsBadRequest(t *testing.T) {
	h := newTestHandler(t, engine.Result{})

	body, _ := json.Marshal(requestBody{Inputs: map[string]any{}})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCancel_KnownID(t *testing.T) {
	h := newTestHandler(t, engine.Result{})

	req := httptest.NewRequest(http.MethodPost, "/v1/cancel/known", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	var decoded map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.True(t, decoded["cancelled"])
}

func TestHandleCancel_UnknownID(t *testing.T) {
	h := newTestHandler(t, engine.Result{})

	req := httptest.NewRequest(http.MethodPost, "/v1/cancel/unknown", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	var decoded map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.False(t, decoded["cancelled"])
}

func TestHandleTTS_Base64AudioInputDecodesToBytes(t *testing.T) {
	log := logging.NewLogrusAdapter(logrus.New())
	pub := state.New()
	var captured engine.Request
	coord := coordinator.New(log, &fakeEngine{result: engine.Result{Outputs: map[string]any{"text": "ok"}}, captured: &captured}, pub, nil)
	r := router.New(log, coord)
	h := NewHandler(log, r, pub)

	audio := []byte{0x01, 0x02, 0x03, 0xff}
	payload := requestBody{Inputs: map[string]any{
		"text":  "speak this",
		"audio": base64.StdEncoding.EncodeToString(audio),
	}}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/v1/tts", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	decodedAudio, ok := captured.InputAudio()
	require.True(t, ok)
	assert.Equal(t, audio, decodedAudio)
}

func TestHandleChat_InvalidJSONBody(t *testing.T) {
	h := newTestHandler(t, engine.Result{})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
