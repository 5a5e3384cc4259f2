package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

// ErrorBody is the JSON shape of every error response
type ErrorBody struct {
	Error string `json:"error"`
}

// StatusOf maps the fault kind of err onto an HTTP status
func StatusOf(err error) int {
	switch ftag.Get(err) {
	case ftag.NotFound:
		return http.StatusNotFound
	case ftag.InvalidArgument:
		return http.StatusBadRequest
	case ftag.AlreadyExists:
		return http.StatusConflict
	case ftag.PermissionDenied:
		return http.StatusForbidden
	case ftag.Unauthenticated:
		return http.StatusUnauthorized
	case ftag.Cancelled:
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

// WriteJSON writes v with the given status
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// WriteError answers with {"error": issue} and a status derived from err.
// The user-facing message wins over the internal one when the error has
// one.
func WriteError(w http.ResponseWriter, err error) {
	msg := fmsg.GetIssue(err)
	if msg == "" {
		msg = err.Error()
	}
	WriteJSON(w, StatusOf(err), ErrorBody{Error: msg})
}

// kindOf is the inverse of StatusOf for responses read back by clients
func kindOf(status int) ftag.Kind {
	switch status {
	case http.StatusNotFound:
		return ftag.NotFound
	case http.StatusBadRequest:
		return ftag.InvalidArgument
	case http.StatusConflict:
		return ftag.AlreadyExists
	case http.StatusForbidden:
		return ftag.PermissionDenied
	case http.StatusUnauthorized:
		return ftag.Unauthenticated
	case http.StatusRequestTimeout:
		return ftag.Cancelled
	}
	return ftag.Internal
}

// ReadError turns a non-2xx response into a tagged error carrying the
// server's message
func ReadError(resp *http.Response) error {
	var body ErrorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = http.StatusText(resp.StatusCode)
	}
	return fault.New(fmt.Sprintf("%s %s: %d", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode),
		ftag.With(kindOf(resp.StatusCode)),
		fmsg.WithDesc(body.Error, body.Error))
}

// IsNotFound reports whether err came from a 404 or a missing document
func IsNotFound(err error) bool {
	return err != nil && ftag.Get(err) == ftag.NotFound
}
