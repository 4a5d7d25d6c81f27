package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/capitalize-ai/neighborhood-advisor/internal/client"
	"github.com/capitalize-ai/neighborhood-advisor/internal/model"
	"github.com/capitalize-ai/neighborhood-advisor/internal/session"
)

// RecommendFlags are the survey answers and polling options of recommend.
type RecommendFlags struct {
	City      string
	Expertise []string
	MinPrice  float64
	MaxPrice  float64
	Features  []string
	HomeTypes []string
	Bedrooms  int
	Commute   string
	Resume    int
}

// BindFlags registers the flags on fs.
func (f *RecommendFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.City, "city", f.City, "City to search (defaults to the saved profile)")
	fs.StringSliceVar(&f.Expertise, "expertise", f.Expertise, "Your background, e.g. first-time-buyer,investor")
	fs.Float64Var(&f.MinPrice, "min-price", f.MinPrice, "Lowest home price in dollars")
	fs.Float64Var(&f.MaxPrice, "max-price", f.MaxPrice, "Highest home price in dollars")
	fs.StringSliceVar(&f.Features, "features", f.Features, "Features that matter, e.g. parks,schools")
	fs.StringSliceVar(&f.HomeTypes, "home-types", f.HomeTypes, "Home types, e.g. condo,townhouse")
	fs.IntVar(&f.Bedrooms, "bedrooms", f.Bedrooms, "Minimum number of bedrooms")
	fs.StringVar(&f.Commute, "commute", f.Commute, "Commute requirements")
	fs.IntVar(&f.Resume, "resume", f.Resume, "Keep waiting this many more poll rounds when the server gives up")
}

// preferences merges the flags over the saved profile.
func (f *RecommendFlags) preferences(saved *model.Profile) (model.Preferences, error) {
	var prefs model.Preferences
	if saved != nil {
		prefs = saved.Preferences
	}

	if f.City != "" {
		prefs.City = f.City
	}
	if len(f.Expertise) > 0 {
		prefs.Expertise = f.Expertise
	}
	if f.MinPrice > 0 {
		prefs.Preferences.PriceRange.Min = f.MinPrice
	}
	if f.MaxPrice > 0 {
		prefs.Preferences.PriceRange.Max = f.MaxPrice
	}
	if len(f.Features) > 0 {
		prefs.Preferences.Features = f.Features
	}
	if len(f.HomeTypes) > 0 {
		prefs.Preferences.HomeTypes = f.HomeTypes
	}
	if f.Bedrooms > 0 {
		prefs.Preferences.Bedrooms = f.Bedrooms
	}
	if f.Commute != "" {
		prefs.Preferences.Commute = f.Commute
	}

	if prefs.City == "" {
		return prefs, errors.New("--city is required when no profile is saved")
	}
	return prefs, nil
}

func newRecommendCommand(a *app) *cobra.Command {
	f := &RecommendFlags{}

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Get neighborhood recommendations for your preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			sess, err := a.session(ctx)
			if err != nil {
				return err
			}

			prefs, err := f.preferences(sess.Profile())
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Looking for neighborhoods in %s...\n", prefs.City)
			outcome, err := sess.Recommend(ctx, prefs)
			if err != nil {
				return explain(err)
			}

			outcome, err = resume(ctx, sess, outcome, f.Resume, out)
			if err != nil {
				return explain(err)
			}

			printOutcome(out, outcome)
			return nil
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}

// resume asks for the results again while the server reports that its poll
// budget ran out.
func resume(ctx context.Context, sess *session.Session, outcome *session.Outcome, rounds int, out io.Writer) (*session.Outcome, error) {
	for i := 0; i < rounds && outcome.Status == string(model.JobStatusExpired); i++ {
		fmt.Fprintln(out, "Still working, waiting a bit longer...")
		var err error
		outcome, err = sess.Results(ctx)
		if err != nil {
			return nil, err
		}
	}
	return outcome, nil
}

func printOutcome(out io.Writer, outcome *session.Outcome) {
	switch {
	case outcome.Completed() && len(outcome.Recommendations) > 0:
		for i, rec := range outcome.Recommendations {
			fmt.Fprintf(out, "\n%d. %s (match %.0f%%)\n", i+1, rec.Name, rec.MatchScore)
			fmt.Fprintf(out, "   %s\n", rec.Description)
			fmt.Fprintf(out, "   Avg price $%.0f | Walk %.0f | Transit %.0f\n", rec.AveragePrice, rec.WalkScore, rec.TransitScore)
			if len(rec.KeyFeatures) > 0 {
				fmt.Fprintf(out, "   Features: %s\n", strings.Join(rec.KeyFeatures, ", "))
			}
			if rec.Trivia != "" {
				fmt.Fprintf(out, "   Trivia: %s\n", rec.Trivia)
			}
		}
	case outcome.Status == string(model.JobStatusExpired):
		fmt.Fprintln(out, "The advisor is taking longer than usual. Run `advisor recommend --resume 3` to keep waiting.")
	case outcome.Status == string(model.JobStatusFailed):
		fmt.Fprintln(out, "The advisor could not finish this request. Please try again.")
	default:
		fmt.Fprintf(out, "No recommendations yet (status: %s).\n", outcome.Status)
	}
}

// explain turns an unusable model answer into advice for the user.
func explain(err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && strings.HasPrefix(apiErr.Details, "invalid-") {
		return fmt.Errorf("the advisor returned an answer we could not read (%s); try adjusting your preferences", apiErr.Details)
	}
	return err
}
