package account

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

// GenericFailureMessage is reported when the backend gives no reason for a
// failed registration.
const GenericFailureMessage = "An unknown error occurred."

// defaultLocation is shown on profiles until the backend provides one.
const defaultLocation = "Los Angeles, CA"

// RegisterRequest holds the sign-up form fields.
type RegisterRequest struct {
	Username string
	Email    string
	Password string
	MobileNo string
}

// Profile is the session-scoped user profile created by registration.
type Profile struct {
	Username  string
	AvatarURL string
	Location  string
}

// ValidationError reports a sign-up field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// RegistrationError reports a registration the backend refused or could not
// complete. Message is safe to show to the user.
type RegistrationError struct {
	Message string
	Err     error
}

func (e *RegistrationError) Error() string {
	return "registration failed: " + e.Message
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// Registrar creates accounts on the backend.
type Registrar interface {
	Register(ctx context.Context, req RegisterRequest) (*Profile, error)
}

// Validate checks the request fields.
func (r RegisterRequest) Validate() error {
	if strings.TrimSpace(r.Username) == "" {
		return &ValidationError{Field: "username", Message: "is required"}
	}
	email := strings.TrimSpace(r.Email)
	if email == "" {
		return &ValidationError{Field: "email", Message: "is required"}
	}
	if at := strings.IndexByte(email, '@'); at <= 0 || at == len(email)-1 {
		return &ValidationError{Field: "email", Message: "is not a valid address"}
	}
	if len(r.Password) < 6 {
		return &ValidationError{Field: "password", Message: "must be at least 6 characters"}
	}
	return nil
}

// MessageFunc extracts a user-facing message from a backend error, reporting
// false when the error carries none.
type MessageFunc func(err error) (string, bool)

// Service registers accounts through a Registrar.
type Service struct {
	registrar Registrar
	message   MessageFunc
}

// NewService creates a Service. message may be nil.
func NewService(registrar Registrar, message MessageFunc) *Service {
	return &Service{registrar: registrar, message: message}
}

// Register validates req and creates the account. Validation failures are
// returned as *ValidationError, backend failures as *RegistrationError.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Profile, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p, err := s.registrar.Register(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		msg := GenericFailureMessage
		if s.message != nil {
			if m, ok := s.message(err); ok && m != "" {
				msg = m
			}
		}
		return nil, &RegistrationError{Message: msg, Err: err}
	}

	if p.Username == "" {
		p.Username = req.Username
	}
	if p.Location == "" {
		p.Location = defaultLocation
	}
	return p, nil
}
