package searcher

import (
	"context"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/lookup/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestUnavailable(t *testing.T) {
	s := Unavailable("usgs", "location not configured")

	_, err := s.Search(context.Background(), query.BuildNational("springfield"), 10)
	assert.ErrorIs(t, err, apperrors.ErrIndexUnavailable)
	assert.Contains(t, err.Error(), "location not configured")

	_, err = s.Fetch(context.Background(), "1")
	assert.ErrorIs(t, err, apperrors.ErrIndexUnavailable)
}
