package model

// MaxRecommendations is the largest result set ever returned to a caller.
const MaxRecommendations = 5

// Recommendation is a single ranked neighborhood.
type Recommendation struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	MatchScore   float64  `json:"matchScore"`
	AveragePrice float64  `json:"averagePrice"`
	TransitScore float64  `json:"transitScore"`
	WalkScore    float64  `json:"walkScore"`
	KeyFeatures  []string `json:"keyFeatures,omitempty"`
	Trivia       string   `json:"trivia,omitempty"`
	Lat          *float64 `json:"lat,omitempty"`
	Lng          *float64 `json:"lng,omitempty"`
	FunFacts     []string `json:"funFacts,omitempty"`
}
