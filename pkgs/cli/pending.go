package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

type pendingResult struct {
	Pending     bool   `json:"pending" yaml:"pending"`
	TxHash      string `json:"txHash,omitempty" yaml:"txHash,omitempty"`
	SubmittedAt string `json:"submittedAt,omitempty" yaml:"submittedAt,omitempty"`
}

func (r pendingResult) RenderText(w io.Writer) error {
	if !r.Pending {
		_, err := fmt.Fprintln(w, "No pending submission.")
		return err
	}
	_, err := fmt.Fprintf(w, "Pending transaction %s (submitted %s)\n", r.TxHash, r.SubmittedAt)
	return err
}

// NewPendingCommand creates the pending command.
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "Show the submission not yet linked to a ledger record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := rootOpts.Connect(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to initialize", err)
			}
			defer a.Close()

			sub, ok, err := a.Session.Pending(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read pending submission", err)
			}

			result := pendingResult{Pending: ok}
			if ok {
				result.TxHash = sub.TxHash
				result.SubmittedAt = sub.SubmittedAt.UTC().Format(time.RFC3339)
			}
			return rootOpts.formatter(cmd.OutOrStdout()).Success(result)
		},
	}
}
