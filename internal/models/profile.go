package models

// UserProfile is the stored profile snapshot read at session-open time.
type UserProfile struct {
	UserID                int64  `json:"user_id" yaml:"-"`
	Name                  string `json:"name" yaml:"name"`
	Age                   *int   `json:"age,omitempty" yaml:"age"`
	WeeksPregnant         *int   `json:"weeks_pregnant,omitempty" yaml:"weeks_pregnant"`
	DeliveryPreference    string `json:"delivery_preference,omitempty" yaml:"delivery_preference"`
	PreviousPregnancies   *int   `json:"previous_pregnancies,omitempty" yaml:"previous_pregnancies"`
	ActivityLevel         string `json:"activity_level,omitempty" yaml:"activity_level"`
	Diet                  string `json:"diet,omitempty" yaml:"diet"`
	WorkSituation         string `json:"work_situation,omitempty" yaml:"work_situation"`
	PartnerSupport        string `json:"partner_support,omitempty" yaml:"partner_support"`
	PreExistingConditions string `json:"pre_existing_conditions,omitempty" yaml:"pre_existing_conditions"`
	PreferredTone         string `json:"preferred_tone,omitempty" yaml:"preferred_tone"`
}

// SessionPrefs is the ephemeral input a user gives when starting a chat.
type SessionPrefs struct {
	Name             string `json:"name,omitempty" yaml:"name"`
	Feeling          string `json:"feeling,omitempty" yaml:"feeling"`
	WeeksPregnant    *int   `json:"weeks_pregnant,omitempty" yaml:"weeks_pregnant"`
	SpecificConcerns string `json:"specific_concerns,omitempty" yaml:"specific_concerns"`
	Conditions       string `json:"conditions,omitempty" yaml:"conditions"`
}
