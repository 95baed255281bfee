package risk

// UnsafeThreshold is the number of agreeing signals that makes an attempt unsafe
const UnsafeThreshold = 3

// Verdict holds the five independent risk signals of one attempt
type Verdict struct {
	ClassifierFlag  bool `json:"classifier_flag"`
	DistanceAnomaly bool `json:"distance_anomaly"`
	DeviceAnomaly   bool `json:"device_anomaly"`
	TimeAnomaly     bool `json:"time_anomaly"`
	AttemptsAnomaly bool `json:"attempts_anomaly"`
}

// Signals returns each signal keyed by its short name
func (v Verdict) Signals() map[string]bool {
	return map[string]bool{
		"classifier": v.ClassifierFlag,
		"distance":   v.DistanceAnomaly,
		"device":     v.DeviceAnomaly,
		"time":       v.TimeAnomaly,
		"attempts":   v.AttemptsAnomaly,
	}
}

// TrustCount is the number of signals that voted anomalous
func (v Verdict) TrustCount() int {
	count := 0
	for _, flagged := range []bool{v.ClassifierFlag, v.DistanceAnomaly, v.DeviceAnomaly, v.TimeAnomaly, v.AttemptsAnomaly} {
		if flagged {
			count++
		}
	}
	return count
}

// Unsafe reports whether enough signals agree to escalate to MFA
func (v Verdict) Unsafe() bool {
	return v.TrustCount() >= UnsafeThreshold
}
