package risk

import (
	"math"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/BradenHooton/riskgate/internal/models"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// ZScoreThreshold is the |z| above which a value is an outlier
	ZScoreThreshold = 2.0
	// SimilarityThreshold is the mean cosine similarity below which a device
	// string is lexically foreign to the rest of the series
	SimilarityThreshold = 0.2
	// minSeries is the smallest history for which an outlier test means anything
	minSeries = 2
)

// zScores returns the population z-score of every element. A zero spread
// yields all-zero scores.
func zScores(data []float64) []float64 {
	mean, std := stat.PopMeanStdDev(data, nil)
	out := make([]float64, len(data))
	if std == 0 || math.IsNaN(std) {
		return out
	}
	for i, v := range data {
		out[i] = math.Abs((v - mean) / std)
	}
	return out
}

// AnomalousValues returns the values of data whose |z| exceeds the threshold.
// Equal values share a score, so duplicates of an outlier are all reported.
func AnomalousValues(data []float64) []float64 {
	var out []float64
	for i, z := range zScores(data) {
		if z > ZScoreThreshold {
			out = append(out, data[i])
		}
	}
	return out
}

// NumberAnomaly appends current to series and reports whether current's value
// is among the outlier values of the combined series.
func NumberAnomaly(series []float64, current float64) bool {
	if len(series) < minSeries {
		return false
	}

	data := make([]float64, 0, len(series)+1)
	data = append(append(data, series...), current)

	return slices.Contains(AnomalousValues(data), current)
}

// TupleAnomaly scores latitude and longitude separately against the history
// alone (current is not part of the baseline) and flags current when a history
// row identical to it has either coordinate beyond the threshold. A location
// never seen before is therefore never flagged here.
func TupleAnomaly(history []models.Location, current models.Location) bool {
	if len(history) < minSeries {
		return false
	}

	lats := make([]float64, len(history))
	lons := make([]float64, len(history))
	for i, loc := range history {
		lats[i] = loc.Latitude
		lons[i] = loc.Longitude
	}
	latZ := zScores(lats)
	lonZ := zScores(lons)

	for i, loc := range history {
		if loc != current {
			continue
		}
		if latZ[i] > ZScoreThreshold || lonZ[i] > ZScoreThreshold {
			return true
		}
	}
	return false
}

// StringAnomaly appends current to history, builds TF-IDF vectors over the
// combined series and flags current when its mean cosine similarity to the
// series (itself included) falls below SimilarityThreshold.
func StringAnomaly(history []string, current string) bool {
	if len(history) < minSeries {
		return false
	}

	docs := append(append(make([]string, 0, len(history)+1), history...), current)
	vectors, ok := tfidf(docs)
	if !ok {
		return false
	}

	var anomalous []string
	for i, v := range vectors {
		var sum float64
		for _, w := range vectors {
			sum += cosine(v, w)
		}
		if sum/float64(len(vectors)) < SimilarityThreshold {
			anomalous = append(anomalous, docs[i])
		}
	}
	return slices.Contains(anomalous, current)
}

// TimeAnomaly derives the signed hour gaps of history followed by current and
// tests the final gap with NumberAnomaly. The final gap is passed both inside
// the series and as the probe, so it is counted twice in the baseline.
func TimeAnomaly(history []time.Time, current time.Time) bool {
	if len(history) < minSeries {
		return false
	}

	times := append(append(make([]time.Time, 0, len(history)+1), history...), current)
	gaps := make([]float64, len(times)-1)
	for i := 0; i < len(times)-1; i++ {
		gaps[i] = times[i].Sub(times[i+1]).Hours()
	}

	return NumberAnomaly(gaps, gaps[len(gaps)-1])
}

// AttemptsAnomaly tests the current failure streak against the streak trail
func AttemptsAnomaly(history []int, current int) bool {
	series := make([]float64, len(history))
	for i, v := range history {
		series[i] = float64(v)
	}
	return NumberAnomaly(series, float64(current))
}

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// tokenize lowercases s and keeps word runs of two or more characters
func tokenize(s string) []string {
	var out []string
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(s), -1) {
		if len([]rune(tok)) >= 2 {
			out = append(out, tok)
		}
	}
	return out
}

// tfidf returns one L2-normalised vector per document using raw term counts
// and smoothed idf, ln((1+n)/(1+df))+1. ok is false when no document yields a
// single token.
func tfidf(docs []string) (vectors [][]float64, ok bool) {
	vocab := make(map[string]int)
	tokens := make([][]string, len(docs))
	for i, d := range docs {
		tokens[i] = tokenize(d)
		for _, t := range tokens[i] {
			if _, seen := vocab[t]; !seen {
				vocab[t] = len(vocab)
			}
		}
	}
	if len(vocab) == 0 {
		return nil, false
	}

	df := make([]float64, len(vocab))
	for _, toks := range tokens {
		seen := make(map[int]bool, len(toks))
		for _, t := range toks {
			idx := vocab[t]
			if !seen[idx] {
				df[idx]++
				seen[idx] = true
			}
		}
	}

	n := float64(len(docs))
	idf := make([]float64, len(vocab))
	for i, d := range df {
		idf[i] = math.Log((1+n)/(1+d)) + 1
	}

	vectors = make([][]float64, len(docs))
	for i, toks := range tokens {
		v := make([]float64, len(vocab))
		for _, t := range toks {
			v[vocab[t]]++
		}
		floats.Mul(v, idf)
		if norm := floats.Norm(v, 2); norm > 0 {
			floats.Scale(1/norm, v)
		}
		vectors[i] = v
	}
	return vectors, true
}

// cosine returns the cosine similarity of a and b, 0 when either is the zero vector
func cosine(a, b []float64) float64 {
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}
