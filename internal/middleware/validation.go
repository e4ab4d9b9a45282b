package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	maxMessageLength = 10000
	maxImageLength   = 10 << 20
	maxTitleLength   = 256
	maxIDLength      = 64
)

// ValidateMessageContent validates a chat message. Empty is allowed when an
// image carries the request.
func ValidateMessageContent(content string) error {
	if len(content) > maxMessageLength {
		return errors.New("message exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("message must be valid UTF-8")
	}
	return nil
}

// ValidateImage bounds the size of an uploaded base64 image.
func ValidateImage(data string) error {
	if len(data) > maxImageLength {
		return errors.New("image exceeds maximum size")
	}
	return nil
}

// ValidateSessionID validates a session ID.
func ValidateSessionID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid session ID format")
	}
	return nil
}

// ValidateProposalID validates a proposal ID.
func ValidateProposalID(id string) error {
	if id == "" || len(id) > maxIDLength*2 {
		return errors.New("invalid proposal ID format")
	}
	if !utf8.ValidString(id) {
		return errors.New("invalid proposal ID format")
	}
	return nil
}

// ValidateTenantID validates a tenant ID.
func ValidateTenantID(id string) error {
	if len(id) == 0 {
		return errors.New("tenant ID cannot be empty")
	}
	if len(id) > maxIDLength {
		return errors.New("tenant ID exceeds maximum length")
	}
	return nil
}

// ValidateTitle validates an event title.
func ValidateTitle(title string) error {
	if len(title) > maxTitleLength {
		return errors.New("title exceeds maximum length")
	}
	if !utf8.ValidString(title) {
		return errors.New("title must be valid UTF-8")
	}
	return nil
}
