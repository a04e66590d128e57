package models

// Appointment is an upcoming scheduled visit.
type Appointment struct {
	Type string `json:"type" yaml:"type"`
	Date string `json:"date" yaml:"date"`
	Time string `json:"time,omitempty" yaml:"time"`
}

// ContextSnapshot is the read-only data gathered when a session opens.
type ContextSnapshot struct {
	Health       HealthSnapshot `json:"health" yaml:"health"`
	Appointments []Appointment  `json:"appointments" yaml:"appointments"`
	RecentTopics []string       `json:"recent_topics" yaml:"recent_topics"`
}

// UserSnapshot bundles the stored profile with the open-time context.
type UserSnapshot struct {
	Profile *UserProfile    `json:"profile,omitempty"`
	Context ContextSnapshot `json:"context"`
}
