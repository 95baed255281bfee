package risk

import (
	"math"
	"time"

	"github.com/BradenHooton/riskgate/internal/models"
)

// Features are the four drift values fed to the classifier. Each compares the
// average step between consecutive history points with the step from the last
// history point to the current attempt.
type Features struct {
	DistanceChange float64
	DeviceChange   float64
	AttemptsChange float64
	TimeChange     float64
}

// Vector returns the features in the classifier's column order
func (f Features) Vector() []float64 {
	return []float64{f.DistanceChange, f.DeviceChange, f.AttemptsChange, f.TimeChange}
}

// ExtractFeatures derives all four drift values from a baseline history and
// the attempt being judged.
func ExtractFeatures(baseline models.LoginHistory, current models.Observation, currAttempts int) Features {
	return Features{
		DistanceChange: float64(DistanceChange(baseline.Locations, current.Location)),
		DeviceChange:   float64(DeviceChange(baseline.Devices, current.Device)),
		AttemptsChange: float64(AttemptsChange(baseline.AttemptCounts, currAttempts)),
		TimeChange:     TimeChange(baseline.LoginTimes, current.ObservedAt),
	}
}

// DistanceChange returns how far the jump to current deviates, in whole
// kilometers, from the average jump between consecutive history locations.
// With fewer than two history points no drift is established and it returns 0.
func DistanceChange(history []models.Location, current models.Location) int {
	if len(history) < 2 {
		return 0
	}

	var sum float64
	for i := 0; i < len(history)-1; i++ {
		sum += greatCircleKm(history[i], history[i+1])
	}
	avg := sum / float64(len(history)-1)

	last := greatCircleKm(history[len(history)-1], current)
	return absInt(int(avg - last))
}

// DeviceChange returns the average number of logins per distinct history
// device, plus one when current has never been seen.
func DeviceChange(history []string, current string) int {
	if len(history) == 0 {
		return 0
	}

	counts := make(map[string]int, len(history))
	for _, d := range history {
		counts[d]++
	}
	avg := len(history) / len(counts)

	if _, seen := counts[current]; seen {
		return avg
	}
	return avg + 1
}

// TimeChange returns how far the gap before current deviates, in hours, from
// the average gap between consecutive history logins.
func TimeChange(history []time.Time, current time.Time) float64 {
	if len(history) < 2 {
		return 0
	}

	var sum float64
	for i := 0; i < len(history)-1; i++ {
		sum += math.Abs(history[i].Sub(history[i+1]).Hours())
	}
	avg := sum / float64(len(history)-1)

	last := math.Abs(history[len(history)-1].Sub(current).Hours())
	return math.Abs(avg - last)
}

// AttemptsChange is the drift of the failed-attempt series, truncated toward zero.
func AttemptsChange(history []int, current int) int {
	if len(history) < 2 {
		return 0
	}

	var sum int
	for i := 0; i < len(history)-1; i++ {
		sum += absInt(history[i] - history[i+1])
	}
	avg := float64(sum) / float64(len(history)-1)

	last := absInt(history[len(history)-1] - current)
	return absInt(int(avg - float64(last)))
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
