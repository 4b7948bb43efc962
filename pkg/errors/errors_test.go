package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error wins", New(ErrInvalidInput, http.StatusTeapot, "custom"), http.StatusTeapot},
		{"invalid input", ErrInvalidInput, http.StatusBadRequest},
		{"wrapped syntax", fmt.Errorf("parsing: %w", ErrQuerySyntax), http.StatusBadRequest},
		{"unknown gazetteer", ErrUnknownGazetteer, http.StatusBadRequest},
		{"index unavailable", ErrIndexUnavailable, http.StatusServiceUnavailable},
		{"timeout", fmt.Errorf("search: %w", ErrTimeout), http.StatusServiceUnavailable},
		{"not found", ErrDocumentNotFound, http.StatusNotFound},
		{"cache disabled", ErrCacheDisabled, http.StatusConflict},
		{"anything else", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrMissingField, http.StatusBadRequest, "field %q", "LAT")
	assert.ErrorIs(t, err, ErrMissingField)
	assert.Equal(t, `missing field: field "LAT"`, err.Error())
}

func TestPublicMessage(t *testing.T) {
	assert.Equal(t, "internal error", PublicMessage(fmt.Errorf("dial tcp: refused")))
	assert.Equal(t, "rows must be positive", PublicMessage(New(ErrInvalidInput, http.StatusBadRequest, "rows must be positive")))
	assert.Equal(t, "unknown gazetteer", PublicMessage(ErrUnknownGazetteer))
	assert.Equal(t, "document not found", New(ErrDocumentNotFound, http.StatusNotFound, "").Error())
}
