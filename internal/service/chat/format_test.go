package chat

import (
	"strings"
	"testing"

	"mamachat/internal/models"
)

func TestFormatDate(t *testing.T) {
	cases := map[string]string{
		"":                          "unknown date",
		"   ":                       "unknown date",
		"not-a-date":                "invalid date",
		"2024-03-05":                "March 5, 2024",
		"2024-03-05 09:30:00":       "March 5, 2024",
		"2024-03-05T09:30:00Z":      "March 5, 2024",
		"2024-03-05T09:30:00+02:00": "March 5, 2024",
	}
	for in, want := range cases {
		if got := FormatDate(in); got != want {
			t.Fatalf("FormatDate(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatReading(t *testing.T) {
	bp := &models.HealthReading{Kind: models.VitalBloodPressure, Systolic: 118, Diastolic: 76, RecordedAt: "2024-06-01"}
	got := FormatReading(models.VitalBloodPressure, bp)
	want := "Blood Pressure: 118/76 mmHg (Logged on June 1, 2024. For context only, do not interpret medically.)"
	if got != want {
		t.Fatalf("blood pressure line = %q", got)
	}

	sugar := &models.HealthReading{Level: 92.5, MeasurementType: "fasting", RecordedAt: "garbage"}
	got = FormatReading(models.VitalBloodSugar, sugar)
	if !strings.HasPrefix(got, "Blood Sugar (fasting): 92.5 mg/dL (Logged on invalid date.") {
		t.Fatalf("blood sugar line = %q", got)
	}

	weight := &models.HealthReading{Weight: 64, Unit: "lbs"}
	got = FormatReading(models.VitalWeight, weight)
	if !strings.HasPrefix(got, "Weight: 64 lbs (Logged on unknown date.") {
		t.Fatalf("weight line = %q", got)
	}
}

func TestFormattersDegradeOnMissingInput(t *testing.T) {
	for _, kind := range append(models.VitalKinds, "", "heart_rate") {
		got := FormatReading(kind, nil)
		if !strings.HasSuffix(got, ": No recent reading available.") {
			t.Fatalf("FormatReading(%q, nil) = %q", kind, got)
		}
	}
	if got := FormatReading(models.VitalBloodPressure, &models.HealthReading{}); !strings.Contains(got, "No recent reading") {
		t.Fatalf("zero reading should degrade, got %q", got)
	}
	if got := FormatHealth(models.HealthSnapshot{}); strings.Count(got, "No recent reading available.") != 3 {
		t.Fatalf("empty health snapshot = %q", got)
	}
	if got := FormatAppointments(nil); got != "No upcoming appointments scheduled." {
		t.Fatalf("FormatAppointments(nil) = %q", got)
	}
	if got := FormatMemory(nil); got != "No previous conversation topics." {
		t.Fatalf("FormatMemory(nil) = %q", got)
	}
	if got := FormatMemory([]string{"", "  "}); got != "No previous conversation topics." {
		t.Fatalf("FormatMemory(blank) = %q", got)
	}
	if got := FormatAppointments([]models.Appointment{{Date: "not-a-date"}}); got != "- Appointment on invalid date" {
		t.Fatalf("malformed appointment = %q", got)
	}
}

func TestFormatAppointments(t *testing.T) {
	got := FormatAppointments([]models.Appointment{
		{Type: "prenatal_checkup", Date: "2024-07-10", Time: "10:30"},
		{Type: "ultrasound", Date: "2024-07-21"},
	})
	want := "- Prenatal Checkup on July 10, 2024 at 10:30\n- Ultrasound on July 21, 2024"
	if got != want {
		t.Fatalf("appointments = %q", got)
	}
}

func TestFormatMemoryBoundsEntries(t *testing.T) {
	long := strings.Repeat("é", 150)
	got := FormatMemory([]string{long, "second", "third", "fourth"})
	lines := strings.Split(got, "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 topics, got %d: %q", len(lines), got)
	}
	if lines[0] != "- "+strings.Repeat("é", 100)+"..." {
		t.Fatalf("first topic not truncated to 100 runes: %q", lines[0])
	}
	if strings.Contains(got, "fourth") {
		t.Fatalf("oldest topic should be dropped: %q", got)
	}
}
