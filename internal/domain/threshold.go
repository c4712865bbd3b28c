package domain

import "time"

// DefaultThreshold is the alert level in centimetres for stations without their own.
const DefaultThreshold = 400.0

// ThresholdResult is the outcome of comparing a station's latest reading to its threshold.
type ThresholdResult struct {
	Station      Station
	Met          bool
	CurrentValue float64
	Threshold    float64
	MeasuredAt   time.Time
}

// EvaluateThreshold compares reading against threshold. The comparison is
// inclusive: a reading equal to the threshold meets it.
func EvaluateThreshold(station Station, reading Reading, threshold float64) ThresholdResult {
	return ThresholdResult{
		Station:      station,
		Met:          reading.ValueCM >= threshold,
		CurrentValue: reading.ValueCM,
		Threshold:    threshold,
		MeasuredAt:   reading.MeasuredAt,
	}
}
