package anomaly

import (
	"fmt"
)

// Detector flags consumption values that stand out from the values before them
type Detector struct {
	spikeThreshold            float64
	minDataPointsForDetection int
}

// NewDetector creates a new anomaly detector with the specified thresholds
func NewDetector(spikeThreshold float64, minDataPointsForDetection int) *Detector {
	return &Detector{
		spikeThreshold:            spikeThreshold,
		minDataPointsForDetection: minDataPointsForDetection,
	}
}

// DetectAnomaly checks value against the average of the preceding values
func (d *Detector) DetectAnomaly(value float64, preceding []float64) (bool, string) {
	// Consumption deltas are never negative
	if value < 0 {
		return true, "negative consumption"
	}

	if len(preceding) < d.minDataPointsForDetection {
		return false, ""
	}

	sum := 0.0
	for _, v := range preceding {
		sum += v
	}
	average := sum / float64(len(preceding))

	if average > 0 && value > d.spikeThreshold*average {
		return true, fmt.Sprintf("consumption spike: %.3f kWh exceeds %.1fx average %.3f kWh",
			value, d.spikeThreshold, average)
	}

	return false, ""
}

// CheckLatest checks the last element of a chronological series against the
// elements before it.
func (d *Detector) CheckLatest(series []float64) (bool, string) {
	if len(series) == 0 {
		return false, ""
	}
	last := len(series) - 1
	return d.DetectAnomaly(series[last], series[:last])
}
