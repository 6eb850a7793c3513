// Package swaggerkit serves the embedded OpenAPI document and the Swagger UI under /api/docs
package swaggerkit

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"

	phttp "turnstiled/internal/platform/net/http"
)

// Mount serves the UI and the document when enabled. mutators run on every document
// request after the defaults are filled in
func Mount(r phttp.Router, enabled bool, mutators ...SpecMutator) {
	if !enabled {
		return
	}
	r.Get("/api/docs", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/api/docs/", http.StatusPermanentRedirect)
	})
	r.Get("/api/docs/doc.json", serveDocJSON(mutators...))
	r.Handle("/api/docs/*", httpSwagger.Handler(
		httpSwagger.InstanceName("turnstiled"),
		httpSwagger.URL("/api/docs/doc.json"),
	))
}
