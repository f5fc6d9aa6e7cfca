package core

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Response renders itself to an http.ResponseWriter.
// Implementations set headers, status code, and write the body.
type Response interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

// JSONResponse is the standard JSON response envelope.
type JSONResponse struct {
	Code  string       `json:"code,omitempty"`
	Data  any          `json:"data,omitempty"`
	Error *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type jsonResponse struct {
	status int
	body   JSONResponse
}

func (j jsonResponse) Render(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(j.status)
	return json.NewEncoder(w).Encode(j.body)
}

// JSON creates a 200 JSON response.
func JSON(code string, data any) Response {
	return jsonResponse{
		status: http.StatusOK,
		body:   JSONResponse{Code: code, Data: data},
	}
}

// JSONWithStatus creates a JSON response with an explicit status code.
func JSONWithStatus(status int, code string, data any) Response {
	return jsonResponse{
		status: status,
		body:   JSONResponse{Code: code, Data: data},
	}
}

// JSONError creates a JSON error response from an error.
// HTTPError values map to their status code; everything else is a 500.
func JSONError(err error) Response {
	status := http.StatusInternalServerError
	code := "internal_error"

	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		status = httpErr.Code
		code = httpErr.Key
	}

	return jsonResponse{
		status: status,
		body: JSONResponse{
			Code: code,
			Error: &ErrorDetail{
				Code:    code,
				Message: err.Error(),
			},
		},
	}
}

// Render writes a Response, falling back to a plain 500 when rendering fails.
func Render(w http.ResponseWriter, r *http.Request, resp Response) {
	if err := resp.Render(w, r); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
