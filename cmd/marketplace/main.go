package main

import (
	"fmt"
	"os"
	"strings"

	"family-booking/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configDir string
	cfg       *config.Config
	logger    *logrus.Entry
)

var rootCmd = &cobra.Command{
	Use:   "marketplace",
	Short: "Family services booking marketplace",
	Long: `marketplace runs the booking API and its operator tooling.
Clients submit service requests, the assignment coordinator binds a provider
(manually or through the matching service) and every status change is
announced by e-mail and on the realtime broker.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadConfig(configDir)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = newLogger(cfg.LogLevel, cfg.LogFormat)
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", ".", "directory holding the .env file")
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(remindersCmd())
	rootCmd.AddCommand(alertsCmd())
	rootCmd.AddCommand(kanbanCmd())
	rootCmd.AddCommand(accountCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(level, format string) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	if strings.EqualFold(format, "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return logrus.NewEntry(l).WithField("service", "family-booking")
}
