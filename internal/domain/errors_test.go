package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorWrapping(t *testing.T) {
	req := require.New(t)
	cause := errors.New("connection refused")

	req.ErrorIs(&PersistenceError{Op: "join", Err: cause}, cause)
	req.ErrorIs(&LoadError{Op: "roster", Err: cause}, cause)
	req.ErrorIs(&SubscriptionError{Table: "messages", Err: cause}, cause)
}

func TestErrorMessages(t *testing.T) {
	req := require.New(t)

	req.Equal("invalid codename: must not be empty",
		(&ValidationError{Field: "codename", Reason: "must not be empty"}).Error())
	req.Contains((&SubscriptionError{Table: "sessions", Err: errors.New("gone")}).Error(), "sessions")
}
