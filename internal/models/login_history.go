package models

import "time"

// Location is a (latitude, longitude) pair in degrees
type Location struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

// Observation is one recorded login attempt
type Observation struct {
	Location   Location
	Device     string
	ObservedAt time.Time
}

// LoginHistory is an account's chronological login record, oldest first.
//
// Locations, Devices and LoginTimes are appended together on every attempt.
// AttemptCounts is the account's AllAttempts trail, so it only grows on resets
// and its length is independent of the other three.
type LoginHistory struct {
	Locations     []Location
	Devices       []string
	LoginTimes    []time.Time
	AttemptCounts []int
}

// Len returns the number of recorded observations
func (h *LoginHistory) Len() int {
	return len(h.Locations)
}

// WithCurrent returns a copy of h with obs appended as the last element of
// each observation sequence. AttemptCounts is copied unchanged.
func (h *LoginHistory) WithCurrent(obs Observation) LoginHistory {
	out := LoginHistory{
		Locations:     make([]Location, 0, len(h.Locations)+1),
		Devices:       make([]string, 0, len(h.Devices)+1),
		LoginTimes:    make([]time.Time, 0, len(h.LoginTimes)+1),
		AttemptCounts: append([]int(nil), h.AttemptCounts...),
	}
	out.Locations = append(append(out.Locations, h.Locations...), obs.Location)
	out.Devices = append(append(out.Devices, h.Devices...), obs.Device)
	out.LoginTimes = append(append(out.LoginTimes, h.LoginTimes...), obs.ObservedAt)
	return out
}

// SplitCurrent separates the last observation (the attempt being judged) from
// the baseline before it. ok is false when any observation sequence is empty
// or the sequences disagree in length.
func (h *LoginHistory) SplitCurrent() (baseline LoginHistory, current Observation, ok bool) {
	n := len(h.Locations)
	if n == 0 || len(h.Devices) != n || len(h.LoginTimes) != n {
		return LoginHistory{}, Observation{}, false
	}

	baseline = LoginHistory{
		Locations:     h.Locations[:n-1],
		Devices:       h.Devices[:n-1],
		LoginTimes:    h.LoginTimes[:n-1],
		AttemptCounts: h.AttemptCounts,
	}
	current = Observation{
		Location:   h.Locations[n-1],
		Device:     h.Devices[n-1],
		ObservedAt: h.LoginTimes[n-1],
	}
	return baseline, current, true
}
