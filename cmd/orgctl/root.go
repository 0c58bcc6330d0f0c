package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"organiflow/api/internal/apiclient"
	"organiflow/api/internal/config"
	"organiflow/api/internal/hierarchy"
	"organiflow/api/internal/orgsync"
)

type rootOptions struct {
	APIURL   string
	Timeout  time.Duration
	LogLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	defaults := defaultsFromEnv()

	cmd := &cobra.Command{
		Use:           "orgctl",
		Short:         "Inspect and reorganize the org chart from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.APIURL, "api", defaults.UpstreamAPIURL, "employee API base URL")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", defaults.SyncTimeout, "timeout for each remote update")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	cmd.AddCommand(newTreeCmd(opts))
	cmd.AddCommand(newMoveCmd(opts))
	cmd.AddCommand(newDropCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newExportCmd(opts))
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		os.Exit(1)
	}
}

// defaultsFromEnv reads flag defaults from .env files and the environment,
// falling back to built-in values when the environment is invalid.
func defaultsFromEnv() config.Config {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{
			UpstreamAPIURL: "http://localhost:8787/api",
			SyncTimeout:    orgsync.DefaultTimeout,
		}
	}
	return cfg
}

func (o *rootOptions) client() (*apiclient.Client, error) {
	return apiclient.New(o.APIURL, o.Timeout)
}

func (o *rootOptions) logger() *logrus.Entry {
	cfg := config.Config{LogLevel: o.LogLevel}
	return logrus.NewEntry(cfg.Logger())
}

// loadController builds a client-side sync controller and performs the
// initial fetch.
func (o *rootOptions) loadController(ctx context.Context, cmd *cobra.Command, policy hierarchy.Policy, mode orgsync.UpdateMode) (*orgsync.Controller, error) {
	client, err := o.client()
	if err != nil {
		return nil, err
	}
	controller := orgsync.NewController(nil, client, client, newPrinterNotifier(cmd.ErrOrStderr()), orgsync.Options{
		Policy:  policy,
		Mode:    mode,
		Timeout: o.Timeout,
		Logger:  o.logger(),
	})
	if err := controller.Load(ctx); err != nil {
		return nil, err
	}
	return controller, nil
}

func parsePolicyAndMode(policy, mode string) (hierarchy.Policy, orgsync.UpdateMode, error) {
	p, err := hierarchy.ParsePolicy(policy)
	if err != nil {
		return "", "", err
	}
	m, err := orgsync.ParseUpdateMode(mode)
	if err != nil {
		return "", "", err
	}
	return p, m, nil
}

func requireValue(flag, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("--%s is required", flag)
	}
	return nil
}
