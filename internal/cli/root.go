// Package cli implements the advisor command line client.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/capitalize-ai/neighborhood-advisor/internal/client"
	natsclient "github.com/capitalize-ai/neighborhood-advisor/internal/nats"
	"github.com/capitalize-ai/neighborhood-advisor/internal/session"
	"github.com/capitalize-ai/neighborhood-advisor/pkg/logger"
)

// Store kinds accepted by --store.
const (
	StoreFile   = "file"
	StoreNATS   = "nats"
	StoreMemory = "memory"
)

// GlobalFlags are shared by every subcommand.
type GlobalFlags struct {
	APIURL      string
	Token       string
	Profile     string
	Store       string
	ProfileFile string
	NATSURL     string
	LogLevel    string
}

// NewGlobalFlags returns the defaults, taking ADVISOR_* environment
// variables into account.
func NewGlobalFlags() *GlobalFlags {
	return &GlobalFlags{
		APIURL:   envOr("ADVISOR_API_URL", "http://localhost:8080"),
		Token:    os.Getenv("ADVISOR_TOKEN"),
		Profile:  "default",
		Store:    StoreFile,
		NATSURL:  os.Getenv("NATS_URL"),
		LogLevel: "warn",
	}
}

// BindFlags registers the flags on fs.
func (f *GlobalFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.APIURL, "api-url", f.APIURL, "Base URL of the advisor API")
	fs.StringVar(&f.Token, "token", f.Token, "Bearer token for the advisor API")
	fs.StringVar(&f.Profile, "profile", f.Profile, "Name of the saved profile")
	fs.StringVar(&f.Store, "store", f.Store, "Where the profile is kept (file, nats, memory)")
	fs.StringVar(&f.ProfileFile, "profile-file", f.ProfileFile, "Profile file for --store=file (default under the user config dir)")
	fs.StringVar(&f.NATSURL, "nats-url", f.NATSURL, "NATS server for --store=nats and the events command")
	fs.StringVar(&f.LogLevel, "log-level", f.LogLevel, "Log level (debug, info, warn, error)")
}

// app is the state built once per invocation.
type app struct {
	flags  *GlobalFlags
	logger *logger.Logger
	nats   *natsclient.Client
}

// NewRootCommand builds the advisor command tree.
func NewRootCommand() *cobra.Command {
	f := NewGlobalFlags()
	a := &app{flags: f}

	root := &cobra.Command{
		Use:   "advisor",
		Short: "Neighborhood recommendations from a hosted assistant",
		Long: `advisor asks the neighborhood advisor API for neighborhoods that match
your survey answers and lets you chat about them. Your answers and the
conversation thread are remembered between runs.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New(f.LogLevel, logger.WithFormat(logger.FormatConsole), logger.WithOutput("stderr"))
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			a.logger = log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	f.BindFlags(root.PersistentFlags())

	root.AddCommand(
		newRecommendCommand(a),
		newStatusCommand(a),
		newChatCommand(a),
		newProfileCommand(a),
		newEventsCommand(a),
	)

	return root
}

func (a *app) client() *client.Client {
	var opts []client.Option
	if a.flags.Token != "" {
		opts = append(opts, client.WithToken(a.flags.Token))
	}
	return client.New(a.flags.APIURL, opts...)
}

func (a *app) connectNATS(ctx context.Context) (*natsclient.Client, error) {
	if a.nats != nil {
		return a.nats, nil
	}
	if a.flags.NATSURL == "" {
		return nil, errors.New("--nats-url is required")
	}
	nc, err := natsclient.Connect(ctx, natsclient.Config{URL: a.flags.NATSURL, Name: "advisor-cli"}, a.logger)
	if err != nil {
		return nil, err
	}
	a.nats = nc
	return nc, nil
}

func (a *app) store(ctx context.Context) (session.Store, error) {
	switch a.flags.Store {
	case StoreMemory:
		return session.NewMemoryStore(), nil
	case StoreNATS:
		nc, err := a.connectNATS(ctx)
		if err != nil {
			return nil, err
		}
		return natsclient.NewProfileStore(ctx, nc, a.flags.Profile)
	case StoreFile:
		path := a.flags.ProfileFile
		if path == "" {
			dir, err := os.UserConfigDir()
			if err != nil {
				return nil, fmt.Errorf("failed to locate config dir: %w", err)
			}
			path = filepath.Join(dir, "neighborhood-advisor", a.flags.Profile+".yaml")
		}
		return session.NewFileStore(path), nil
	default:
		return nil, fmt.Errorf("unknown store %q", a.flags.Store)
	}
}

func (a *app) session(ctx context.Context) (*session.Session, error) {
	store, err := a.store(ctx)
	if err != nil {
		return nil, err
	}
	return session.New(ctx, a.client(), store, a.logger)
}

func (a *app) close() {
	if a.nats != nil {
		a.nats.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
