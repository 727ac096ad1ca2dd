package driver

import (
	"github.com/danmuck/edgelink/internal/protocol"
	"github.com/rs/zerolog"
)

// Handler receives driver events. Calls for one connection arrive on the
// read-loop goroutine in wire order; implementations must not block long.
// A socket's NodeClose is delivered before the next socket's NodeOnline.
type Handler interface {
	NodeOnline(d Driver)
	NodeMessage(d Driver, frame protocol.Frame)
	NodeError(d Driver, err error)
	NodeClose(d Driver, code int, reason string)
	Debug(d Driver, msg string)
}

// HandlerFuncs adapts plain functions; nil fields are skipped.
type HandlerFuncs struct {
	OnOnline  func(d Driver)
	OnMessage func(d Driver, frame protocol.Frame)
	OnError   func(d Driver, err error)
	OnClose   func(d Driver, code int, reason string)
	OnDebug   func(d Driver, msg string)
}

func (h HandlerFuncs) NodeOnline(d Driver) {
	if h.OnOnline != nil {
		h.OnOnline(d)
	}
}

func (h HandlerFuncs) NodeMessage(d Driver, frame protocol.Frame) {
	if h.OnMessage != nil {
		h.OnMessage(d, frame)
	}
}

func (h HandlerFuncs) NodeError(d Driver, err error) {
	if h.OnError != nil {
		h.OnError(d, err)
	}
}

func (h HandlerFuncs) NodeClose(d Driver, code int, reason string) {
	if h.OnClose != nil {
		h.OnClose(d, code, reason)
	}
}

func (h HandlerFuncs) Debug(d Driver, msg string) {
	if h.OnDebug != nil {
		h.OnDebug(d, msg)
	}
}

// LogHandler writes every event as a structured log line.
type LogHandler struct {
	Logger zerolog.Logger
}

func (h LogHandler) NodeOnline(d Driver) {
	h.Logger.Info().Str("node", d.Name()).Str("driver", d.Kind()).Msg("node online")
}

func (h LogHandler) NodeMessage(d Driver, frame protocol.Frame) {
	h.Logger.Debug().
		Str("node", d.Name()).
		Str("op", frame.Op).
		Str("guild", frame.GuildID).
		Str("type", frame.Type).
		Str("reason", frame.Reason).
		Msg("node frame")
}

func (h LogHandler) NodeError(d Driver, err error) {
	h.Logger.Error().Err(err).Str("node", d.Name()).Msg("node error")
}

func (h LogHandler) NodeClose(d Driver, code int, reason string) {
	h.Logger.Warn().Str("node", d.Name()).Int("code", code).Str("reason", reason).Msg("node closed")
}

func (h LogHandler) Debug(d Driver, msg string) {
	h.Logger.Debug().Str("node", d.Name()).Msg(msg)
}
