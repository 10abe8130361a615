// Command medbook runs the scheduling core and the agent locally against an
// in-memory directory of seeded doctors and patients.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wolfman30/medbook-agent/internal/appointments"
	appconfig "github.com/wolfman30/medbook-agent/internal/config"
	"github.com/wolfman30/medbook-agent/internal/conversation"
	"github.com/wolfman30/medbook-agent/pkg/logging"
)

type cli struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	// llm replaces the configured provider chain when set.
	llm   conversation.LLMClient
	store *appointments.MemoryStore

	envFile  string
	logLevel string
	cfg      *appconfig.Config
	logger   *logging.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := &cli{in: os.Stdin, out: os.Stdout, errOut: os.Stderr}
	if err := c.rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "medbook",
		Short:        "Clinic scheduling assistant (local mode)",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
	}
	root.SetIn(c.in)
	root.SetOut(c.out)
	root.SetErr(c.errOut)
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file to load before reading configuration")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override LOG_LEVEL")

	root.AddCommand(c.chatCmd())
	root.AddCommand(c.slotsCmd())
	root.AddCommand(c.bookCmd())
	root.AddCommand(c.usersCmd())
	return root
}

func (c *cli) setup() error {
	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", c.envFile, err)
		}
	}
	c.cfg = appconfig.Load()
	if c.logLevel != "" {
		c.cfg.LogLevel = c.logLevel
	}
	// The CLI never touches Postgres; bookings live in the seeded store.
	c.cfg.DatabaseURL = ""
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	c.logger = logging.NewWithFormat(c.cfg.LogLevel, "text", c.errOut)
	if c.store == nil {
		c.store = appointments.NewMemoryStore()
		seedDirectory(c.store)
	}
	return nil
}
