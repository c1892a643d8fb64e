package tf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFloorToTF(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 7, 33, 0, time.UTC)
	got := FloorToTF(ts, 5)
	want := time.Date(2024, 3, 1, 12, 5, 0, 0, time.UTC)
	assert.True(t, got.Equal(want))
}

func TestFloorToTFIdempotent(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 7, 33, 0, time.UTC)
	once := FloorToTF(ts, 15)
	twice := FloorToTF(once, 15)
	assert.True(t, once.Equal(twice), "floor(floor(ts,k),k) must equal floor(ts,k)")
}

func TestAddMinutesStaysAligned(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 7, 33, 0, time.UTC)
	floored := FloorToTF(ts, 15)
	added := AddMinutes(floored, 15)
	assert.True(t, IsOnBoundary(added, 15), "addMinutes(floor(ts,k), k) must also be floor-aligned")
}

func TestEndOfDay(t *testing.T) {
	ts := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	got := EndOfDay(ts)
	assert.Equal(t, 23, got.Hour())
	assert.Equal(t, 59, got.Minute())
	assert.Equal(t, 0, got.Second())
}

func TestNearBoundary(t *testing.T) {
	floored := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	near := floored.Add(4*time.Minute + 30*time.Second)
	assert.True(t, NearBoundary(near, 5, time.Minute))

	far := floored.Add(2 * time.Minute)
	assert.False(t, NearBoundary(far, 5, time.Minute))
}
