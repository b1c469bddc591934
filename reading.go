package sngraz

import "time"

// Reading types reported by the portal.
const (
	// ReadingConsumption is the consumption delta for one interval.
	ReadingConsumption = "CONSUMP"
	// ReadingMeter is the absolute meter reading.
	ReadingMeter = "MR"
)

// StateValid marks a measured, non-estimated value.
const StateValid = "Valid"

// ReadingValue is one typed entry of a reading record, exactly as sent by the server.
type ReadingValue struct {
	ReadingType  string  `json:"readingType"`
	Value        float64 `json:"value"`
	ReadingState string  `json:"readingState"`
}

// Reading is one reading record. Values only holds entries whose state is
// Valid; RawValues keeps every entry the server sent.
type Reading struct {
	ReadTime  time.Time
	Values    map[string]float64
	RawValues []ReadingValue
}

// Value returns the value of the given reading type.
func (r Reading) Value(readingType string) (float64, bool) {
	v, ok := r.Values[readingType]
	return v, ok
}

// Consumption returns the consumption delta, if present.
func (r Reading) Consumption() (float64, bool) {
	return r.Value(ReadingConsumption)
}

// MeterReading returns the absolute meter reading, if present.
func (r Reading) MeterReading() (float64, bool) {
	return r.Value(ReadingMeter)
}

// validValues builds the sparse type to value map, skipping non-Valid entries.
func validValues(values []ReadingValue) map[string]float64 {
	res := make(map[string]float64, len(values))
	for _, rv := range values {
		if rv.ReadingState != StateValid {
			continue
		}
		res[rv.ReadingType] = rv.Value
	}
	return res
}
