// Package httpapi is the engine runtime's HTTP ingress/egress binding (spec
// C10's transport side): it turns the four typed verbs spec.md §6 defines
// into HTTP routes, and turns coordinator Results back into HTTP responses
// or newline-delimited JSON streams.
//
// Grounded on the teacher's scheduling.HTTPHandler: a *http.ServeMux built
// once at construction from a route table, wrapping a non-transport core
// (there, the Scheduler; here, the Router) rather than embedding HTTP
// concerns into it.
package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/edgerunner/engine/pkg/engine"
	"github.com/edgerunner/engine/pkg/engine/router"
	"github.com/edgerunner/engine/pkg/engine/state"
	"github.com/edgerunner/engine/pkg/logging"
)

// byteInputKeys are the Inputs keys request.go exposes as []byte
// (InputAudio, InputImage). JSON has no byte-slice type, so clients send
// these base64-encoded; decodeByteInputs turns the decoded strings back
// into []byte before they reach the router.
var byteInputKeys = []string{"audio", "image"}

// decodeByteInputs replaces base64-encoded JSON strings at byteInputKeys
// with the decoded []byte, in place. A key holding a non-string value (or
// already-invalid base64) is left untouched; the router's own validation
// rejects it.
func decodeByteInputs(inputs map[string]any) {
	for _, key := range byteInputKeys {
		s, ok := inputs[key].(string)
		if !ok {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			continue
		}
		inputs[key] = decoded
	}
}

// Handler is the HTTP ingress for the engine runtime.
type Handler struct {
	log    logging.Logger
	router *router.Router
	state  *state.Publisher
	mux    *http.ServeMux
}

// NewHandler builds the route table over r, with service-state transitions
// read from pub.
func NewHandler(log logging.Logger, r *router.Router, pub *state.Publisher) *Handler {
	h := &Handler{log: log, router: r, state: pub, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /v1/chat", h.handle(router.VerbChat))
	h.mux.HandleFunc("POST /v1/asr", h.handle(router.VerbASR))
	h.mux.HandleFunc("POST /v1/tts", h.handle(router.VerbTTS))
	h.mux.HandleFunc("POST /v1/guardian", h.handle(router.VerbGuardian))
	h.mux.HandleFunc("POST /v1/cancel/{id}", h.handleCancel)
	h.mux.HandleFunc("GET /v1/state", h.handleState)

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// requestBody is the wire shape for every typed verb route.
type requestBody struct {
	CorrelationID   string         `json:"correlation_id"`
	SessionID       string         `json:"session_id"`
	Inputs          map[string]any `json:"inputs"`
	Params          map[string]any `json:"params"`
	PreferredRunner string         `json:"preferred_runner"`
	Stream          bool           `json:"stream"`
}

func (h *Handler) handle(verb router.Verb) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body requestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}

		decodeByteInputs(body.Inputs)
		request := engine.Request{
			SessionID: body.SessionID,
			Inputs:    body.Inputs,
			Params:    body.Params,
			Timestamp: time.Now(),
		}

		if body.Stream {
			h.dispatchStream(w, r, verb, body.CorrelationID, request, body.PreferredRunner)
			return
		}
		h.dispatchOneShot(w, r, verb, body.CorrelationID, request, body.PreferredRunner)
	}
}

func (h *Handler) dispatchOneShot(w http.ResponseWriter, r *http.Request, verb router.Verb, correlationID string, request engine.Request, preferred string) {
	egress := &jsonEgress{w: w}
	h.router.Dispatch(r.Context(), verb, correlationID, request, preferred, false, egress)
}

func (h *Handler) dispatchStream(w http.ResponseWriter, r *http.Request, verb router.Verb, correlationID string, request engine.Request, preferred string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported by this transport", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	egress := &ndjsonEgress{w: w, flusher: flusher}
	h.router.Dispatch(r.Context(), verb, correlationID, request, preferred, true, egress)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/cancel/")
	found := h.router.Cancel(id)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"cancelled": found})
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported by this transport", http.StatusInternalServerError)
		return
	}

	ch, unsubscribe := h.state.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)

	for {
		select {
		case s, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(s)
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte("data: ")); err != nil {
				return
			}
			if _, err := w.Write(data); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// jsonEgress implements router.Egress for the one-shot path: exactly one
// JSON response body is written.
type jsonEgress struct {
	w http.ResponseWriter
}

func (e *jsonEgress) DeliverResult(correlationID string, result engine.Result) {
	e.w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(e.w).Encode(map[string]any{
		"correlation_id": correlationID,
		"outputs":        result.Outputs,
		"metadata":       result.Metadata,
	})
}

func (e *jsonEgress) DeliverError(correlationID string, err *engine.RunnerError) {
	status := http.StatusInternalServerError
	if err.Code == engine.ErrCodeInvalidInput {
		status = http.StatusBadRequest
	}
	if err.Code == engine.ErrCodeRunnerNotFound || err.Code == engine.ErrCodeCapabilityUnsupported {
		status = http.StatusNotFound
	}
	e.w.Header().Set("Content-Type", "application/json")
	e.w.WriteHeader(status)
	_ = json.NewEncoder(e.w).Encode(map[string]any{
		"correlation_id": correlationID,
		"error":          err,
	})
}

// ndjsonEgress implements router.Egress for the streaming path: every
// emission is one flushed JSON line.
type ndjsonEgress struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (e *ndjsonEgress) DeliverResult(correlationID string, result engine.Result) {
	e.write(map[string]any{
		"correlation_id": correlationID,
		"outputs":        result.Outputs,
		"metadata":       result.Metadata,
		"partial":        result.Partial,
		"error":          result.Error,
	})
}

func (e *ndjsonEgress) DeliverError(correlationID string, err *engine.RunnerError) {
	e.write(map[string]any{
		"correlation_id": correlationID,
		"error":          err,
	})
}

func (e *ndjsonEgress) write(v map[string]any) {
	data, jsonErr := json.Marshal(v)
	if jsonErr != nil {
		return
	}
	if _, err := e.w.Write(append(data, '\n')); err != nil {
		return
	}
	e.flusher.Flush()
}
