package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	ErrNotFound = errors.New("requested resource not found")

	ErrValidationFailed   = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid email or password")

	ErrUserEmailConflict    = errors.New("email address is already in use")
	ErrUserUsernameConflict = errors.New("username is already in use")
	ErrBetConflict          = errors.New("bet already exists for this user and player")

	ErrUserNotFound          = errors.New("user not found")
	ErrTournamentNotFound    = errors.New("tournament not found")
	ErrGameNotFound          = errors.New("game not found")
	ErrNoGamesForTournament  = errors.New("no games found for this tournament")
	ErrParticipationNotFound = errors.New("player odds not found")
	ErrBetNotFound           = errors.New("bet not found")

	ErrReportsDisabled = errors.New("report storage is not configured")
)

// ValidationError carries per-field messages and matches ErrValidationFailed.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, e.Fields[k])
	}
	return fmt.Sprintf("%s: %s", ErrValidationFailed, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// validator собирает ошибки по полям.
type validator struct {
	fields map[string]string
}

func newValidator() *validator {
	return &validator{fields: make(map[string]string)}
}

func (v *validator) check(ok bool, field, message string) {
	if !ok {
		if _, exists := v.fields[field]; !exists {
			v.fields[field] = message
		}
	}
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}
