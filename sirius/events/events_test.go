package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SiriusScan/go-ingest/sirius/postgres"
)

func TestRepositoryWithoutConnection(t *testing.T) {
	repo := &Repository{}
	ctx := context.Background()

	_, err := repo.Record(ctx, NewEvent{EventType: "upload_processed", Title: "Processed scan.nessus"})
	assert.ErrorIs(t, err, postgres.ErrNoConnection)

	_, _, err = repo.GetEvents(ctx, EventFilters{})
	assert.ErrorIs(t, err, postgres.ErrNoConnection)

	_, err = repo.GetEventsByEntity(ctx, "file", "5", 10)
	assert.ErrorIs(t, err, postgres.ErrNoConnection)
}

func TestClampPage(t *testing.T) {
	tests := []struct {
		name       string
		in         EventFilters
		wantLimit  int
		wantOffset int
	}{
		{"defaults", EventFilters{}, 50, 0},
		{"kept", EventFilters{Limit: 20, Offset: 40}, 20, 40},
		{"capped", EventFilters{Limit: 10000}, 500, 0},
		{"negative offset", EventFilters{Limit: 5, Offset: -3}, 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clampPage(tt.in)
			assert.Equal(t, tt.wantLimit, got.Limit)
			assert.Equal(t, tt.wantOffset, got.Offset)
		})
	}
}
