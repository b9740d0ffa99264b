package backend

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/account"
)

var _ account.Registrar = (*Client)(nil)

// Register calls POST /api/register and returns the created profile.
func (c *Client) Register(ctx context.Context, req account.RegisterRequest) (*account.Profile, error) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("username")
	e.Str(req.Username)
	e.FieldStart("email")
	e.Str(req.Email)
	e.FieldStart("password")
	e.Str(req.Password)
	e.FieldStart("mobileNo")
	e.Str(req.MobileNo)
	e.ObjEnd()

	data, err := c.do(ctx, "Register", http.MethodPost, e.Bytes(), "api", "register")
	if err != nil {
		return nil, err
	}

	var p account.Profile
	if err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if d.Next() != jx.String {
			return d.Skip()
		}
		v, err := d.Str()
		if err != nil {
			return err
		}
		switch string(key) {
		case "username":
			p.Username = v
		case "avatarUrl":
			p.AvatarURL = v
		case "location":
			p.Location = v
		}
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode register response")
	}
	return &p, nil
}
