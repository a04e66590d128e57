package models

// VitalKind names a tracked vital.
type VitalKind string

const (
	VitalBloodPressure VitalKind = "blood_pressure"
	VitalBloodSugar    VitalKind = "blood_sugar"
	VitalWeight        VitalKind = "weight"
)

// VitalKinds lists every tracked vital in display order.
var VitalKinds = []VitalKind{VitalBloodPressure, VitalBloodSugar, VitalWeight}

// HealthReading is one logged vital. Only the fields of its kind are set.
// RecordedAt is kept as stored; it may be empty or malformed.
type HealthReading struct {
	Kind            VitalKind `json:"kind" yaml:"kind"`
	Systolic        int       `json:"systolic,omitempty" yaml:"systolic"`
	Diastolic       int       `json:"diastolic,omitempty" yaml:"diastolic"`
	Level           float64   `json:"level,omitempty" yaml:"level"`
	MeasurementType string    `json:"measurement_type,omitempty" yaml:"measurement_type"`
	Weight          float64   `json:"weight,omitempty" yaml:"weight"`
	Unit            string    `json:"unit,omitempty" yaml:"unit"`
	RecordedAt      string    `json:"recorded_at" yaml:"recorded_at"`
}

// HealthSnapshot holds the latest reading per vital.
type HealthSnapshot struct {
	BloodPressure *HealthReading `json:"blood_pressure,omitempty" yaml:"blood_pressure"`
	BloodSugar    *HealthReading `json:"blood_sugar,omitempty" yaml:"blood_sugar"`
	Weight        *HealthReading `json:"weight,omitempty" yaml:"weight"`
}

// Reading returns the snapshot entry for kind.
func (h HealthSnapshot) Reading(kind VitalKind) *HealthReading {
	switch kind {
	case VitalBloodPressure:
		return h.BloodPressure
	case VitalBloodSugar:
		return h.BloodSugar
	case VitalWeight:
		return h.Weight
	default:
		return nil
	}
}

// Set stores r under kind.
func (h *HealthSnapshot) Set(kind VitalKind, r *HealthReading) {
	switch kind {
	case VitalBloodPressure:
		h.BloodPressure = r
	case VitalBloodSugar:
		h.BloodSugar = r
	case VitalWeight:
		h.Weight = r
	}
}
