package model

import "errors"

var (
	// ErrInvalidToken is returned when a token fails verification or is
	// missing the identity claims.
	ErrInvalidToken = errors.New("invalid token")

	// ErrConversationNotFound is returned when a conversation is not found.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrAttendeeNotFound is returned when an attendee is not found.
	ErrAttendeeNotFound = errors.New("attendee not found")
)
