package account

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRegistrar struct {
	profile *Profile
	err     error
	last    RegisterRequest
	calls   int
}

func (m *mockRegistrar) Register(_ context.Context, req RegisterRequest) (*Profile, error) {
	m.calls++
	m.last = req
	return m.profile, m.err
}

type messageError struct{ msg string }

func (e *messageError) Error() string { return "backend: " + e.msg }

func extractMessage(err error) (string, bool) {
	var me *messageError
	if errors.As(err, &me) {
		return me.msg, true
	}
	return "", false
}

func validRequest() RegisterRequest {
	return RegisterRequest{
		Username: " Ada ",
		Email:    "ada@example.com",
		Password: "s3cret!",
		MobileNo: "+1 555 0100",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(r *RegisterRequest)
		field  string
	}{
		{name: "valid", modify: func(*RegisterRequest) {}},
		{name: "missing username", modify: func(r *RegisterRequest) { r.Username = "  " }, field: "username"},
		{name: "missing email", modify: func(r *RegisterRequest) { r.Email = "" }, field: "email"},
		{name: "email without at", modify: func(r *RegisterRequest) { r.Email = "ada.example.com" }, field: "email"},
		{name: "email without domain", modify: func(r *RegisterRequest) { r.Email = "ada@" }, field: "email"},
		{name: "short password", modify: func(r *RegisterRequest) { r.Password = "abc" }, field: "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRequest()
			tt.modify(&r)

			err := r.Validate()
			if tt.field == "" {
				require.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestRegister_Success(t *testing.T) {
	reg := &mockRegistrar{profile: &Profile{AvatarURL: "https://cdn.example.com/a.png"}}
	svc := NewService(reg, extractMessage)

	p, err := svc.Register(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, "Ada", reg.last.Username)
	assert.Equal(t, "Ada", p.Username)
	assert.Equal(t, "https://cdn.example.com/a.png", p.AvatarURL)
	assert.Equal(t, defaultLocation, p.Location)
}

func TestRegister_InvalidSkipsBackend(t *testing.T) {
	reg := &mockRegistrar{}
	req := validRequest()
	req.Password = ""

	_, err := NewService(reg, extractMessage).Register(context.Background(), req)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Zero(t, reg.calls)
}

func TestRegister_ServerMessage(t *testing.T) {
	reg := &mockRegistrar{err: &messageError{msg: "Email already registered"}}

	_, err := NewService(reg, extractMessage).Register(context.Background(), validRequest())

	var re *RegistrationError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "Email already registered", re.Message)
}

func TestRegister_GenericMessage(t *testing.T) {
	reg := &mockRegistrar{err: errors.New("dial tcp: connection refused")}

	_, err := NewService(reg, extractMessage).Register(context.Background(), validRequest())

	var re *RegistrationError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, GenericFailureMessage, re.Message)
	assert.Contains(t, errors.Unwrap(err).Error(), "connection refused")

	_, err = NewService(reg, nil).Register(context.Background(), validRequest())
	require.ErrorAs(t, err, &re)
	assert.Equal(t, GenericFailureMessage, re.Message)
}
