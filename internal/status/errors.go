package status

import (
	"errors"

	"github.com/kiranshivaraju/sketchforge/internal/store"
)

var (
	ErrNotFound          = store.ErrNotFound
	ErrInvalidTransition = errors.New("invalid sketch status transition")
	ErrTerminalState     = errors.New("sketch job already in a terminal state")
	ErrQuotaExceeded     = errors.New("user quota exceeded")
	ErrInvalidTimeframe  = errors.New("invalid timeframe")
	ErrInvalidArgument   = errors.New("invalid argument")
)
