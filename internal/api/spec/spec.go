// Package spec embeds the OpenAPI document of the marketplace API.
package spec

import (
	_ "embed"
	"net/http"
)

//go:embed openapi.yaml
var document []byte

// Document returns the raw OpenAPI YAML.
func Document() []byte {
	return document
}

// OpenAPIHandler serves the embedded document for Swagger UI and clients.
func OpenAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.Header().Set("Cache-Control", "public, max-age=300")
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			_, _ = w.Write(document)
		}
	}
}
