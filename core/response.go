package core

import "net/http"

// Response renders itself onto an http.ResponseWriter. Handlers return a
// Response instead of writing directly so status mapping stays in one place.
type Response interface {
	Render(w http.ResponseWriter, r *http.Request) error
}
