package chat

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"mamachat/internal/models"
)

const (
	// DefaultMemoryLimit is how many recent topics reach the prompt.
	DefaultMemoryLimit = 3
	// DefaultExcerptRunes bounds each remembered excerpt.
	DefaultExcerptRunes = 100

	unknownDate     = "unknown date"
	invalidDate     = "invalid date"
	noAppointments  = "No upcoming appointments scheduled."
	noTopics        = "No previous conversation topics."
	contextOnlyNote = "For context only, do not interpret medically."
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// FormatDate renders a stored timestamp as "January 2, 2006".
// Missing input gives "unknown date" and unparsable input "invalid date".
func FormatDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return unknownDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("January 2, 2006")
		}
	}
	return invalidDate
}

// VitalLabel is the display label for kind.
func VitalLabel(kind models.VitalKind) string {
	switch kind {
	case models.VitalBloodPressure:
		return "Blood Pressure"
	case models.VitalBloodSugar:
		return "Blood Sugar"
	case models.VitalWeight:
		return "Weight"
	default:
		if kind == "" {
			return "Reading"
		}
		return humanize(string(kind))
	}
}

// FormatReading renders the latest reading of kind as one line.
func FormatReading(kind models.VitalKind, r *models.HealthReading) string {
	label := VitalLabel(kind)
	if r == nil {
		return label + ": No recent reading available."
	}
	var value, unit string
	switch kind {
	case models.VitalBloodPressure:
		if r.Systolic <= 0 || r.Diastolic <= 0 {
			return label + ": No recent reading available."
		}
		value = fmt.Sprintf("%d/%d", r.Systolic, r.Diastolic)
		unit = orDefault(r.Unit, "mmHg")
	case models.VitalBloodSugar:
		if r.Level <= 0 {
			return label + ": No recent reading available."
		}
		if mt := strings.TrimSpace(r.MeasurementType); mt != "" {
			label = fmt.Sprintf("%s (%s)", label, strings.ToLower(strings.ReplaceAll(mt, "_", " ")))
		}
		value = formatNumber(r.Level)
		unit = orDefault(r.Unit, "mg/dL")
	case models.VitalWeight:
		if r.Weight <= 0 {
			return label + ": No recent reading available."
		}
		value = formatNumber(r.Weight)
		unit = orDefault(r.Unit, "kg")
	default:
		return label + ": No recent reading available."
	}
	return fmt.Sprintf("%s: %s %s (Logged on %s. %s)", label, value, unit, FormatDate(r.RecordedAt), contextOnlyNote)
}

// FormatHealth renders one line per tracked vital.
func FormatHealth(h models.HealthSnapshot) string {
	lines := make([]string, 0, len(models.VitalKinds))
	for _, kind := range models.VitalKinds {
		lines = append(lines, FormatReading(kind, h.Reading(kind)))
	}
	return strings.Join(lines, "\n")
}

// FormatAppointments renders upcoming appointments in the given order.
func FormatAppointments(appts []models.Appointment) string {
	if len(appts) == 0 {
		return noAppointments
	}
	lines := make([]string, 0, len(appts))
	for _, a := range appts {
		kind := humanize(a.Type)
		if kind == "" {
			kind = "Appointment"
		}
		when := FormatDate(a.Date)
		if t := strings.TrimSpace(a.Time); t != "" {
			when += " at " + t
		}
		lines = append(lines, fmt.Sprintf("- %s on %s", kind, when))
	}
	return strings.Join(lines, "\n")
}

// FormatMemory renders the most recent topics, newest first, with default bounds.
func FormatMemory(topics []string) string {
	return FormatMemoryN(topics, DefaultMemoryLimit, DefaultExcerptRunes)
}

// FormatMemoryN renders at most limit topics, each cut to maxRunes.
// topics is expected newest first.
func FormatMemoryN(topics []string, limit, maxRunes int) string {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	if maxRunes <= 0 {
		maxRunes = DefaultExcerptRunes
	}
	lines := make([]string, 0, limit)
	for _, t := range topics {
		t = strings.Join(strings.Fields(t), " ")
		if t == "" {
			continue
		}
		lines = append(lines, "- "+truncateRunes(t, maxRunes))
		if len(lines) == limit {
			break
		}
	}
	if len(lines) == 0 {
		return noTopics
	}
	return strings.Join(lines, "\n")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimRightFunc(string(r[:n]), unicode.IsSpace) + "..."
}

// humanize turns "prenatal_checkup" into "Prenatal Checkup".
func humanize(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '-' || unicode.IsSpace(r) })
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
