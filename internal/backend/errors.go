package backend

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// maxMessageLen bounds error messages taken from plain-text bodies.
const maxMessageLen = 512

// NetworkError reports a request that did not produce an HTTP response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// APIError reports a non-2xx response from the backend.
type APIError struct {
	Op         string
	StatusCode int
	// Message is the server-provided reason, if any.
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("backend %s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

// MessageOf returns the server-provided message carried by err.
func MessageOf(err error) (string, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message, true
	}
	return "", false
}

// errorMessage extracts a reason from an error response body. JSON bodies are
// searched for "message" then "error"; anything else is used as text.
func errorMessage(contentType string, body []byte) string {
	if strings.Contains(contentType, "application/json") {
		var message, fallback string
		_ = jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
			if d.Next() != jx.String {
				return d.Skip()
			}
			v, err := d.Str()
			if err != nil {
				return err
			}
			switch string(key) {
			case "message":
				message = v
			case "error":
				fallback = v
			}
			return nil
		})
		if message != "" {
			return message
		}
		return fallback
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > maxMessageLen {
		msg = msg[:maxMessageLen]
	}
	return msg
}
