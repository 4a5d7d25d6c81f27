package middleware

import (
	"errors"
	"regexp"
	"unicode/utf8"

	"github.com/capitalize-ai/neighborhood-advisor/internal/model"
)

const (
	maxMessageLength = 8000
	maxCityLength    = 128
)

// Provider identifiers are opaque; only their charset and length are checked.
var providerIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidateThreadID validates a thread ID.
func ValidateThreadID(id string) error {
	if id == "" {
		return errors.New("threadId is required")
	}
	if !providerIDRe.MatchString(id) {
		return errors.New("invalid threadId format")
	}
	return nil
}

// ValidateRunID validates a run ID.
func ValidateRunID(id string) error {
	if id == "" {
		return errors.New("runId is required")
	}
	if !providerIDRe.MatchString(id) {
		return errors.New("invalid runId format")
	}
	return nil
}

// ValidateMessage validates a chat message.
func ValidateMessage(msg string) error {
	if msg == "" {
		return errors.New("message is required")
	}
	if len(msg) > maxMessageLength {
		return errors.New("message exceeds maximum length")
	}
	if !utf8.ValidString(msg) {
		return errors.New("message must be valid UTF-8")
	}
	return nil
}

// ValidatePreferences validates a survey submission.
func ValidatePreferences(prefs model.Preferences) error {
	if prefs.City == "" {
		return errors.New("city is required")
	}
	if len(prefs.City) > maxCityLength || !utf8.ValidString(prefs.City) {
		return errors.New("invalid city")
	}
	pr := prefs.Preferences.PriceRange
	if pr.Min < 0 || pr.Max < 0 {
		return errors.New("price range must not be negative")
	}
	if pr.Max > 0 && pr.Min > pr.Max {
		return errors.New("price range minimum exceeds maximum")
	}
	if prefs.Preferences.Bedrooms < 0 {
		return errors.New("bedrooms must not be negative")
	}
	return nil
}
