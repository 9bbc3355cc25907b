package tele

import (
	"context"

	"github.com/temoto/ks0066/log2"
)

// Tele transport contract:
// - Init fails only with invalid config, ignores network errors
// - Send* return true only when message was handed to broker
// - application may start without network available
type Transporter interface {
	Init(ctx context.Context, log *log2.Log, config Config, onCommand CommandCallback) error
	SendResponse(payload []byte) bool
	SendError(payload []byte) bool
	Close()
}

// CommandCallback returns true when payload is stored and may be acknowledged.
type CommandCallback func(context.Context, []byte) bool
