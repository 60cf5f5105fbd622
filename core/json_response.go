package core

import (
	"encoding/json"
	"errors"
	"net/http"
)

// JSONResponse is the standard JSON response envelope.
type JSONResponse struct {
	Data  any          `json:"data,omitempty"`
	Error *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
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
func JSON(data any) Response {
	return JSONWithStatus(http.StatusOK, data)
}

// JSONWithStatus creates a JSON response with an explicit status code.
func JSONWithStatus(status int, data any) Response {
	return jsonResponse{status: status, body: JSONResponse{Data: data}}
}

// JSONError creates a JSON error response. HTTPError values carry their own
// status and code; anything else renders as a 500 internal error without
// leaking the underlying message.
func JSONError(err error) Response {
	status := http.StatusInternalServerError
	detail := &ErrorDetail{Code: "internal_error"}

	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		status = httpErr.Code
		detail.Code = httpErr.Key
		detail.Message = http.StatusText(httpErr.Code)
	}

	return jsonResponse{status: status, body: JSONResponse{Error: detail}}
}
