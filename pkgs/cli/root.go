// Package cli implements the shc command line.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/ASingh442/sikh-historical-chain/config"
	"github.com/ASingh442/sikh-historical-chain/pkgs/app"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "text" | "json" | "yaml"

	// Connect builds the application graph. Replaced in tests.
	Connect func(ctx context.Context) (*app.App, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command for the shc CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Connect: connect}

	cmd := &cobra.Command{
		Use:           "shc",
		Short:         "Sikh Historical Chain records client",
		Long:          "Browse, fetch and submit content-addressed historical records on the Sikh Historical Chain ledger.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.Verbose {
				log.SetLevel(log.DebugLevel)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")

	cmd.AddCommand(NewRecordsCommand(opts))
	cmd.AddCommand(NewFetchCommand(opts))
	cmd.AddCommand(NewSubmitCommand(opts))
	cmd.AddCommand(NewPendingCommand(opts))
	cmd.AddCommand(NewParseCommand(opts))

	return cmd
}

func connect(ctx context.Context) (*app.App, error) {
	settings, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, settings)
}

func (o *RootOptions) formatter(w io.Writer) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: w, Verbose: o.Verbose}
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
