package protocol

import "errors"

var (
	ErrSessionNotReady   = errors.New("protocol: session id not ready")
	ErrTransport         = errors.New("protocol: transport error")
	ErrMalformedPayload  = errors.New("protocol: malformed payload")
	ErrUnknownLoadType   = errors.New("protocol: unknown load type")
	ErrInvalidLoadResult = errors.New("protocol: invalid load result")
	ErrAlreadyConnected  = errors.New("protocol: already connected")
	ErrInvalidEndpoint   = errors.New("protocol: invalid endpoint")
)
