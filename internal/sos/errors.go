package sos

import "github.com/pkg/errors"

var (
	ErrAlreadyActive = errors.New("user already has an active alert")
	ErrNotFound      = errors.New("alert not found")
	ErrInvalidState  = errors.New("alert is not active")
	ErrInvalidInput  = errors.New("invalid input")
	// ErrQueueEnqueue is returned alongside an already committed alert when
	// its notification job could not be queued.
	ErrQueueEnqueue = errors.New("notification enqueue failed")
)
