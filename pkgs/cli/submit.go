package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ASingh442/sikh-historical-chain/pkgs/pinning"
	"github.com/ASingh442/sikh-historical-chain/pkgs/submission"
	"github.com/spf13/cobra"
)

// SubmitOptions holds flags for the submit command.
type SubmitOptions struct {
	*RootOptions
	Title       string
	Description string
	Date        string
	Contributor string
	Files       []string
}

type submitResult struct {
	TxHash      string   `json:"txHash" yaml:"txHash"`
	SubmittedAt string   `json:"submittedAt" yaml:"submittedAt"`
	Files       []string `json:"files" yaml:"files"`
}

func (r submitResult) RenderText(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "Submitted %d file(s) in transaction %s\n", len(r.Files), r.TxHash); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, "Run 'shc records' once the transaction is mined to see the new record.")
	return err
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Pin files and write a new record to the ledger",
		Long: `Validates the files and metadata, pins the files, then sends the record
to the ledger contract. Verified contributors may also attach video.

Examples:
  shc submit --title "Hukamnama" --description "Letter to the sangat" --date 15/04/1699 --file letter.jpg
  shc submit --title "Oral account" --description "..." --date 01/01/1900`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Title, "title", "t", "", "record title (required)")
	cmd.Flags().StringVarP(&opts.Description, "description", "d", "", "record description (required)")
	cmd.Flags().StringVar(&opts.Date, "date", "", "date of the event, dd/mm/yy or dd/mm/yyyy (required)")
	cmd.Flags().StringVarP(&opts.Contributor, "contributor", "c", "", "attribution shown on the record")
	cmd.Flags().StringArrayVarP(&opts.Files, "file", "f", nil, "file to attach (repeatable, max 5)")

	return cmd
}

func runSubmit(cmd *cobra.Command, opts *SubmitOptions) error {
	meta := submission.Metadata{
		Title:       opts.Title,
		Description: opts.Description,
		EventDate:   opts.Date,
		Contributor: opts.Contributor,
	}
	if err := meta.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid metadata", err)
	}

	files, err := readFiles(opts.Files)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read files", err)
	}

	ctx := cmd.Context()
	a, err := opts.Connect(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize", err)
	}
	defer a.Close()

	// Capability reads hit the chain, so read-only mode stops here.
	if a.Settings.ReadOnly {
		return WrapExitError(ExitFailure, "submission failed", submission.ErrWriteDisabled)
	}
	if err := a.Settings.ValidateWrite(); err != nil {
		return WrapExitError(ExitCommandError, "submissions are not configured", err)
	}

	batch, err := a.Session.Stage(ctx, a.Contract.Signer(), files)
	if err != nil {
		return WrapExitError(ExitCommandError, "files rejected", err)
	}

	sub, err := a.Session.Submit(ctx, batch, meta)
	if err != nil {
		return WrapExitError(ExitFailure, "submission failed", err)
	}

	result := submitResult{
		TxHash:      sub.TxHash,
		SubmittedAt: sub.SubmittedAt.Format(time.RFC3339),
		Files:       []string{},
	}
	for _, f := range batch.Files() {
		result.Files = append(result.Files, f.Name)
	}
	return opts.formatter(cmd.OutOrStdout()).Success(result)
}

func readFiles(paths []string) ([]pinning.File, error) {
	files := make([]pinning.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		files = append(files, pinning.File{Name: filepath.Base(p), Data: data})
	}
	return files, nil
}
