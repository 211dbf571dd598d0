package domain

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/uww-saigusa/messageboard/pkg/crypto"
)

// MaxPasswordBytes mirrors the bcrypt input limit.
const MaxPasswordBytes = crypto.MaxPasswordBytes

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateMessageContent requires at least one non-whitespace character.
func ValidateMessageContent(content string) *ValidationError {
	if content == "" {
		return &ValidationError{Field: "content", Message: "message must contain at least one character"}
	}
	if strings.TrimSpace(content) == "" {
		return &ValidationError{Field: "content", Message: "message must not be blank"}
	}
	return nil
}

// ValidateCredentials checks registration input.
func ValidateCredentials(email, password string) *ValidationError {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return &ValidationError{Field: "email", Message: "email is required"}
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return &ValidationError{Field: "email", Message: "email is not a valid address"}
	}
	if password == "" {
		return &ValidationError{Field: "password", Message: "password is required"}
	}
	if len(password) > MaxPasswordBytes {
		return &ValidationError{Field: "password", Message: fmt.Sprintf("password must be at most %d bytes", MaxPasswordBytes)}
	}
	return nil
}

// ValidatePage checks pagination parameters.
func ValidatePage(skip, limit int) *ValidationError {
	if skip < 0 {
		return &ValidationError{Field: "skip", Message: "skip must not be negative"}
	}
	if limit < 0 {
		return &ValidationError{Field: "limit", Message: "limit must not be negative"}
	}
	return nil
}
