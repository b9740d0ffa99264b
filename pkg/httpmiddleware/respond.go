package httpmiddleware

import (
	"net/http"
	"strconv"

	"github.com/go-faster/jx"
)

// WriteError writes the {"code","message"} error body used by the API.
func WriteError(w http.ResponseWriter, status int, message string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(message)
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(e.Bytes())))
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
