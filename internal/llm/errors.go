package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"
)

// ErrNoAssistantMessage is returned when a thread holds no assistant reply.
var ErrNoAssistantMessage = errors.New("thread has no assistant message")

// TransportError is a failed call to the model service. StatusCode is zero
// when no HTTP response was received.
type TransportError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("transport error: %s", e.Message)
	}
	return fmt.Sprintf("transport error %d: %s", e.StatusCode, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// mapError converts an SDK or network error into a *TransportError.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var te *TransportError
	if errors.As(err, &te) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &TransportError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &TransportError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error(), Err: err}
	}

	return &TransportError{Message: err.Error(), Err: err}
}

// statusError builds a *TransportError from a raw non-2xx response body.
func statusError(statusCode int, body []byte) error {
	return &TransportError{StatusCode: statusCode, Message: providerMessage(statusCode, body)}
}

// providerMessage digs the human readable message out of an error body,
// accepting both the nested and the flat error envelope.
func providerMessage(statusCode int, body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error.message", "message", "error"} {
			if v := gjson.GetBytes(body, path); v.Type == gjson.String && v.String() != "" {
				return v.String()
			}
		}
	}
	if s := strings.TrimSpace(string(body)); s != "" {
		return s
	}
	return http.StatusText(statusCode)
}
