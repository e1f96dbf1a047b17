//go:build !integration

package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWindow(t *testing.T) {
	w, err := parseWindow("2026-03-01", "2026-03-15", "2026-03-08")
	require.NoError(t, err)
	assert.Equal(t, 7, w.prePeriods)

	_, err = parseWindow("2026-03-01", "2026-03-15", "2026-03-01")
	assert.Error(t, err, "no pre period")

	_, err = parseWindow("2026-03-01", "2026-03-15", "2026-03-15")
	assert.Error(t, err, "no post period")

	_, err = parseWindow("03/01/2026", "2026-03-15", "2026-03-08")
	assert.Error(t, err)
}

type fakeSeries map[string][]float64

func (f fakeSeries) DailyConversions(_ context.Context, ids []string, _, _ time.Time) (map[string][]float64, error) {
	out := make(map[string][]float64, len(ids))
	for _, id := range ids {
		out[id] = f[id]
	}
	return out, nil
}

func TestLoadSyntheticInput(t *testing.T) {
	src := fakeSeries{
		"t":  {1, 2, 3, 9},
		"d1": {1, 2, 3, 4},
		"d2": {2, 2, 2, 2},
	}
	w := window{prePeriods: 3}

	in, err := loadSyntheticInput(t.Context(), src, "t", []string{"d1", "d2", "t"}, w)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 9}, in.Treated)
	assert.Len(t, in.Donors, 2, "the treated campaign is never its own donor")
	assert.Equal(t, 3, in.PrePeriods)
}
