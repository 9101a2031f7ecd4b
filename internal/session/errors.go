package session

import "errors"

var (
	ErrSessionActive = errors.New("a session is already active")
	ErrNoSession     = errors.New("no active session")
	ErrSessionFull   = errors.New("session is full")
	ErrUserNotFound  = errors.New("user not found in session")
)
