package spec

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAPIHandlerServesDocument(t *testing.T) {
	w := httptest.NewRecorder()
	OpenAPIHandler()(w, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/yaml", w.Header().Get("Content-Type"))
	assert.Equal(t, Document(), w.Body.Bytes())
	for _, path := range []string{"/api/escrow/create:", "/api/create-bid-checkout:", "/api/notifications:"} {
		assert.Contains(t, string(Document()), path)
	}
}
