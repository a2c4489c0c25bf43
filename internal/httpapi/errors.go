package httpapi

import (
	"net/http"

	"github.com/go-chi/render"
)

// ErrResponse is the JSON body of every failed request.
type ErrResponse struct {
	Err            error `json:"-"`
	HTTPStatusCode int   `json:"-"`

	ErrorText string `json:"error"`
}

// Render implements render.Renderer.
func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

// ErrInvalidRequest is a 400 with msg shown to the client.
func ErrInvalidRequest(msg string) render.Renderer {
	return &ErrResponse{HTTPStatusCode: http.StatusBadRequest, ErrorText: msg}
}

// ErrTooLarge is a 413 for oversized uploads.
func ErrTooLarge(err error) render.Renderer {
	return &ErrResponse{Err: err, HTTPStatusCode: http.StatusRequestEntityTooLarge, ErrorText: "File too large"}
}

// ErrInternal is a 500 that carries the cause.
func ErrInternal(err error) render.Renderer {
	return &ErrResponse{Err: err, HTTPStatusCode: http.StatusInternalServerError, ErrorText: "Internal server error: " + err.Error()}
}
