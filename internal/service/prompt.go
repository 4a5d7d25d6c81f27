package service

import (
	"fmt"
	"strings"

	"github.com/capitalize-ai/neighborhood-advisor/internal/model"
)

// ChatSystemPrompt frames every follow-up chat.
const ChatSystemPrompt = "You are a friendly local real-estate expert. Answer follow-up questions about the " +
	"neighborhoods you recommended earlier in this conversation. Keep answers short and concrete."

const responseFormat = `Respond ONLY with a JSON object of this exact shape and nothing else:
{"recommendations":[{"name":"","description":"","matchScore":0,"averagePrice":0,"transitScore":0,"walkScore":0,"keyFeatures":[],"trivia":"","lat":0,"lng":0,"funFacts":[]}]}
matchScore, transitScore and walkScore are between 0 and 100. averagePrice is in US dollars.
Return at most 5 neighborhoods, best match first, each with a unique name.`

// BuildPrompt renders the survey answers into the message that starts a
// recommendation job.
func BuildPrompt(prefs model.Preferences) string {
	var b strings.Builder
	answers := prefs.Preferences

	fmt.Fprintf(&b, "Recommend neighborhoods in %s for a home buyer with these preferences.\n", prefs.City)
	if len(prefs.Expertise) > 0 {
		fmt.Fprintf(&b, "Buyer background: %s.\n", strings.Join(prefs.Expertise, ", "))
	}
	if answers.PriceRange.Min > 0 || answers.PriceRange.Max > 0 {
		fmt.Fprintf(&b, "Price range: $%.0f to $%.0f.\n", answers.PriceRange.Min, answers.PriceRange.Max)
	}
	if len(answers.HomeTypes) > 0 {
		fmt.Fprintf(&b, "Home types: %s.\n", strings.Join(answers.HomeTypes, ", "))
	}
	if answers.Bedrooms > 0 {
		fmt.Fprintf(&b, "Bedrooms: at least %d.\n", answers.Bedrooms)
	}
	if len(answers.Features) > 0 {
		fmt.Fprintf(&b, "Important features: %s.\n", strings.Join(answers.Features, ", "))
	}
	if answers.Commute != "" {
		fmt.Fprintf(&b, "Commute: %s.\n", answers.Commute)
	}
	b.WriteString("\n")
	b.WriteString(responseFormat)

	return b.String()
}
