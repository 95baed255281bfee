package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTenant_HasField(t *testing.T) {
	tenant := &Tenant{Fields: []string{"email", "username"}}
	assert.True(t, tenant.HasField("email"))
	assert.False(t, tenant.HasField("phone"))
}

func TestIsReservedField(t *testing.T) {
	for _, name := range []string{"id", "password", "mfa_key", "all_attempts", "prev_locations"} {
		assert.True(t, IsReservedField(name), name)
	}
	assert.False(t, IsReservedField("email"))
	assert.False(t, IsReservedField("Password"))
}

func TestLoginHistory_WithCurrentAndSplit(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	h := LoginHistory{
		Locations:     []Location{{Latitude: 1, Longitude: 2}},
		Devices:       []string{"Safari"},
		LoginTimes:    []time.Time{t0},
		AttemptCounts: []int{0, 3},
	}
	obs := Observation{Location: Location{Latitude: 3, Longitude: 4}, Device: "Firefox", ObservedAt: t0.Add(time.Hour)}

	full := h.WithCurrent(obs)
	assert.Equal(t, 2, full.Len())
	assert.Equal(t, 1, h.Len(), "receiver must not change")
	assert.Equal(t, []int{0, 3}, full.AttemptCounts)

	baseline, current, ok := full.SplitCurrent()
	require.True(t, ok)
	assert.Equal(t, obs, current)
	assert.Equal(t, h.Locations, baseline.Locations)
	assert.Equal(t, h.Devices, baseline.Devices)
	assert.Equal(t, h.LoginTimes, baseline.LoginTimes)
}

func TestLoginHistory_SplitCurrentInvalid(t *testing.T) {
	_, _, ok := (&LoginHistory{}).SplitCurrent()
	assert.False(t, ok)

	mismatched := LoginHistory{
		Locations:  []Location{{}, {}},
		Devices:    []string{"a"},
		LoginTimes: []time.Time{{}, {}},
	}
	_, _, ok = mismatched.SplitCurrent()
	assert.False(t, ok)
}
