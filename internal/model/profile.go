// Package model defines data structures for the neighborhood advisor.
package model

// ProfileKey is the fixed name the client-side profile record is stored under.
const ProfileKey = "userProfile"

// PriceRange bounds the home prices a user is willing to consider.
type PriceRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// SurveyAnswers holds the free-form answers of the preference survey.
type SurveyAnswers struct {
	PriceRange PriceRange `json:"priceRange" yaml:"price_range"`
	Features   []string   `json:"features,omitempty" yaml:"features,omitempty"`
	HomeTypes  []string   `json:"homeTypes,omitempty" yaml:"home_types,omitempty"`
	Bedrooms   int        `json:"bedrooms,omitempty" yaml:"bedrooms,omitempty"`
	Commute    string     `json:"commute,omitempty" yaml:"commute,omitempty"`
}

// Preferences is the payload used to seed a conversation thread.
type Preferences struct {
	City        string        `json:"city" yaml:"city"`
	Expertise   []string      `json:"expertise,omitempty" yaml:"expertise,omitempty"`
	Preferences SurveyAnswers `json:"preferences" yaml:"preferences"`
}

// Profile is the single record a client persists between runs: the survey
// answers and the thread created from them.
type Profile struct {
	Preferences Preferences `json:"preferences" yaml:"preferences"`
	ThreadID    string      `json:"threadId,omitempty" yaml:"thread_id,omitempty"`
}
