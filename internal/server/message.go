// Package server exposes a running stay-awake process to local tools.
//
// It serves a loopback-only HTTP API (status and quit) and a WebSocket feed
// that mirrors the countdown display: ETA changes, ticks, cadence changes,
// keep-awake transitions and the final terminate notice.
package server

import (
	"encoding/json"
	"time"

	"github.com/stayawake/stay-awake/internal/autoquit"
	"github.com/stayawake/stay-awake/internal/keepawake"
)

// MessageType identifies the kind of message being sent over WebSocket.
type MessageType string

const (
	// MessageTypeHello is the first message on every connection.
	// Payload: StatusResponse
	MessageTypeHello MessageType = "hello"

	// MessageTypeETA announces the deadline of the current run.
	// Payload: ETAPayload
	MessageTypeETA MessageType = "countdown.eta"

	// MessageTypeTick is one countdown update.
	// Payload: TickPayload
	MessageTypeTick MessageType = "countdown.tick"

	// MessageTypeCadence is sent when the update interval changes.
	// Payload: CadencePayload
	MessageTypeCadence MessageType = "countdown.cadence"

	// MessageTypeKeepAwake carries a keep-awake state transition.
	// Payload: keepawake.Status
	MessageTypeKeepAwake MessageType = "keepawake.status"

	// MessageTypeTerminate is the last message before the process exits.
	// Payload: TerminatePayload
	MessageTypeTerminate MessageType = "autoquit.terminate"

	// MessageTypeQuit is sent by clients to stop the run early.
	// Payload: none
	MessageTypeQuit MessageType = "autoquit.quit"

	// MessageTypeError reports a rejected client request.
	// Payload: ErrorPayload
	MessageTypeError MessageType = "error"
)

// Message is the envelope for every WebSocket frame.
type Message struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Envelope is the receive-side view of a Message with the payload left raw.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ETAPayload describes the deadline of the current run.
type ETAPayload struct {
	At           time.Time `json:"at"`
	Label        string    `json:"label"`
	TotalSeconds int64     `json:"total_seconds"`
}

// TickPayload is one countdown update.
type TickPayload struct {
	RemainingSeconds int64  `json:"remaining_seconds"`
	Remaining        string `json:"remaining"`
	CadenceMs        int64  `json:"cadence_ms"`
	NextMs           int64  `json:"next_ms"`
}

// CadencePayload carries the new update interval.
type CadencePayload struct {
	CadenceMs int64 `json:"cadence_ms"`
}

// TerminatePayload says why the process is going away.
type TerminatePayload struct {
	Reason string `json:"reason"`
}

// ErrorPayload carries a coded error.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewETAMessage builds a MessageTypeETA message.
func NewETAMessage(eta autoquit.ETA) Message {
	return Message{Type: MessageTypeETA, Payload: ETAPayload{
		At:           eta.At,
		Label:        eta.Label,
		TotalSeconds: int64(eta.Total.Round(time.Second) / time.Second),
	}}
}

// NewTickMessage builds a MessageTypeTick message.
func NewTickMessage(tick autoquit.Tick) Message {
	return Message{Type: MessageTypeTick, Payload: TickPayload{
		RemainingSeconds: int64(tick.Remaining.Round(time.Second) / time.Second),
		Remaining:        tick.RemainingText(),
		CadenceMs:        tick.Cadence.Milliseconds(),
		NextMs:           tick.Next.Milliseconds(),
	}}
}

// NewCadenceMessage builds a MessageTypeCadence message.
func NewCadenceMessage(cadence time.Duration) Message {
	return Message{Type: MessageTypeCadence, Payload: CadencePayload{CadenceMs: cadence.Milliseconds()}}
}

// NewKeepAwakeMessage builds a MessageTypeKeepAwake message.
func NewKeepAwakeMessage(st keepawake.Status) Message {
	return Message{Type: MessageTypeKeepAwake, Payload: st}
}

// NewTerminateMessage builds a MessageTypeTerminate message.
func NewTerminateMessage(reason autoquit.Reason) Message {
	return Message{Type: MessageTypeTerminate, Payload: TerminatePayload{Reason: string(reason)}}
}

// NewErrorMessage builds a MessageTypeError message.
func NewErrorMessage(code, message string) Message {
	return Message{Type: MessageTypeError, Payload: ErrorPayload{Code: code, Message: message}}
}
