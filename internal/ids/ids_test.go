package ids

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAt_SortsInCreationOrder(t *testing.T) {
	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	got := make([]string, 0, 50)
	for range 50 {
		got = append(got, NewAt(at))
	}
	assert.True(t, sort.StringsAreSorted(got))
	assert.Len(t, got[0], 26)
}

func TestTime_RoundTrip(t *testing.T) {
	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	ts, err := Time(NewAt(at))
	require.NoError(t, err)
	assert.True(t, ts.Equal(at))

	_, err = Time("not-an-id")
	require.Error(t, err)
}
