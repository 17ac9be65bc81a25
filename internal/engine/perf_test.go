package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEstimateDrain(t *testing.T) {
	tests := []struct {
		employees, batch int
		cycles           int
		total            time.Duration
	}{
		{10, 10, 1, 10 * time.Second},
		{60, 10, 6, 60 * time.Second},
		{61, 10, 7, 70 * time.Second},
		{60, 15, 4, 40 * time.Second},
		{0, 10, 0, 0},
	}
	for _, tt := range tests {
		e := EstimateDrain(tt.employees, tt.batch, 10*time.Second)
		assert.Equal(t, tt.cycles, e.Cycles, "%d/%d", tt.employees, tt.batch)
		assert.Equal(t, tt.total, e.Total)
		assert.Equal(t, tt.total, e.MaxWait)
		assert.Equal(t, tt.total/2, e.AvgWait)
	}
}

func TestEstimateDrain_DefaultBatch(t *testing.T) {
	e := EstimateDrain(25, 0, time.Second)
	assert.Equal(t, DefaultBatchSize, e.BatchSize)
	assert.Equal(t, 3, e.Cycles)
}
