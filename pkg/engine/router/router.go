// Package router implements the request router (spec C10): a thin adapter
// mapping the ingress transport's typed verbs (chat/asr/tts/guardian) onto
// (capability, Request) pairs for the coordinator, and coordinator Results
// back onto the egress delivery contract.
//
// Grounded on the teacher's http_handler.go, which performs the same
// "typed HTTP route -> inference.Backend capability call -> response
// writer" adapter role; generalized from HTTP routes to transport-agnostic
// verbs so the core has no dependency on any particular wire protocol.
package router

import (
	"context"

	"github.com/edgerunner/engine/pkg/engine"
	"github.com/edgerunner/engine/pkg/engine/coordinator"
	"github.com/edgerunner/engine/pkg/logging"
)

// Verb is one of the four typed ingress verbs spec.md §6 defines.
type Verb string

const (
	VerbChat     Verb = "chat"
	VerbASR      Verb = "asr"
	VerbTTS      Verb = "tts"
	VerbGuardian Verb = "guardian"
)

// Capability maps v onto its target capability.
func (v Verb) Capability() (engine.Capability, bool) {
	switch v {
	case VerbChat:
		return engine.CapabilityLLM, true
	case VerbASR:
		return engine.CapabilityASR, true
	case VerbTTS:
		return engine.CapabilityTTS, true
	case VerbGuardian:
		return engine.CapabilityGuardian, true
	default:
		return "", false
	}
}

// Streams reports whether v's ingress table entry marks it as streaming by
// default (spec.md §6 "Streams?" column: chat and asr yes, guardian no, tts
// optional — callers may still request streaming for tts explicitly via
// Dispatch's stream argument).
func (v Verb) Streams() bool {
	return v == VerbChat || v == VerbASR
}

// Validate checks request against v's required-inputs table (spec.md §6).
func Validate(v Verb, request engine.Request) *engine.RunnerError {
	switch v {
	case VerbChat, VerbTTS, VerbGuardian:
		if _, ok := request.InputText(); !ok {
			return engine.NewInvalidInputError("text input is required and must be non-empty")
		}
	case VerbASR:
		if _, ok := request.InputAudio(); ok {
			return nil
		}
		if _, ok := request.InputAudioID(); ok {
			return nil
		}
		return engine.NewInvalidInputError("asr requires either audio or audio_id input")
	default:
		return engine.NewInvalidInputError("unrecognized verb")
	}
	return nil
}

// Egress is the boundary transport's delivery contract (spec.md §6).
// deliver_result may be called multiple times for a stream; the final call
// for a stream has Result.Partial == false.
type Egress interface {
	DeliverResult(correlationID string, result engine.Result)
	DeliverError(correlationID string, err *engine.RunnerError)
}

// Router adapts ingress verbs onto the coordinator.
type Router struct {
	log         logging.Logger
	coordinator *coordinator.Coordinator
}

// New constructs a Router over coord.
func New(log logging.Logger, coord *coordinator.Coordinator) *Router {
	return &Router{log: log, coordinator: coord}
}

// Dispatch validates request against verb and routes it through the
// coordinator as either a one-shot call or a stream, depending on stream.
// correlationID is the client-supplied id preserved end-to-end; if empty,
// the coordinator stamps one.
func (r *Router) Dispatch(ctx context.Context, verb Verb, correlationID string, request engine.Request, preferred string, stream bool, egress Egress) {
	capability, ok := verb.Capability()
	if !ok {
		egress.DeliverError(correlationID, engine.NewInvalidInputError("unrecognized verb"))
		return
	}
	if err := Validate(verb, request); err != nil {
		egress.DeliverError(correlationID, err)
		return
	}

	if stream {
		r.dispatchStream(ctx, correlationID, request, capability, preferred, egress)
		return
	}
	r.dispatchOneShot(ctx, correlationID, request, capability, preferred, egress)
}

func (r *Router) dispatchOneShot(ctx context.Context, correlationID string, request engine.Request, capability engine.Capability, preferred string, egress Egress) {
	result := r.coordinator.Process(ctx, correlationID, request, capability, preferred)
	if result.Error != nil {
		egress.DeliverError(correlationID, result.Error)
		return
	}
	egress.DeliverResult(correlationID, result)
}

func (r *Router) dispatchStream(ctx context.Context, correlationID string, request engine.Request, capability engine.Capability, preferred string, egress Egress) {
	for sr := range r.coordinator.Stream(ctx, correlationID, request, capability, preferred) {
		if sr.Result.Error != nil {
			egress.DeliverError(correlationID, sr.Result.Error)
			continue
		}
		egress.DeliverResult(correlationID, sr.Result)
	}
}

// Cancel requests cancellation of a previously dispatched correlation id.
func (r *Router) Cancel(correlationID string) bool {
	return r.coordinator.Cancel(correlationID)
}
