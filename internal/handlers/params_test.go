package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xpense/backend/internal/services"
)

func TestQueryPeriodBounds(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantFrom time.Time
		wantTo   time.Time
	}{
		{
			name:     "plain dates cover the last day",
			query:    "from=2024-01-01&to=2024-01-31",
			wantFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2024, 1, 31, 23, 59, 59, 999999999, time.UTC),
		},
		{
			name:     "timestamps are taken as given",
			query:    "from=2024-01-01T10:00:00Z&to=2024-01-31T12:30:00Z",
			wantFrom: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2024, 1, 31, 12, 30, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/expenses?"+tt.query, nil)

			from, err := queryTime(r, "from")
			require.NoError(t, err)
			to, err := queryPeriodEnd(r, "to")
			require.NoError(t, err)

			assert.True(t, tt.wantFrom.Equal(*from), "from = %s", from)
			assert.True(t, tt.wantTo.Equal(*to), "to = %s", to)
		})
	}

	t.Run("absent", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/expenses", nil)
		to, err := queryPeriodEnd(r, "to")
		assert.NoError(t, err)
		assert.Nil(t, to)
	})

	t.Run("malformed", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/expenses?to=31.01.2024", nil)
		_, err := queryPeriodEnd(r, "to")
		var validationErr *services.ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "to", validationErr.Field)
	})
}
