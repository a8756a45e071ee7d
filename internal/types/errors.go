package types

import "github.com/go-faster/errors"

var (
	// ErrCollaboratorUnavailable marks a failed or timed-out exchange, LLM or news call.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	// ErrConfiguration is fatal at startup.
	ErrConfiguration      = errors.New("configuration error")
	ErrPositionConflict   = errors.New("position already open")
	ErrPositionNotFound   = errors.New("position not found")
	ErrMalformedSentiment = errors.New("malformed sentiment response")
)
