package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/ASingh442/sikh-historical-chain/pkgs/contentref"
	"github.com/ASingh442/sikh-historical-chain/pkgs/gateway"
	"github.com/spf13/cobra"
)

// FetchOptions holds flags for the fetch command.
type FetchOptions struct {
	*RootOptions
	Output string
}

type fetchResult struct {
	Reference   string `json:"reference" yaml:"reference"`
	Source      string `json:"source" yaml:"source"`
	ContentType string `json:"contentType" yaml:"contentType"`
	Size        int    `json:"size" yaml:"size"`
	Output      string `json:"output" yaml:"output"`
}

func (r fetchResult) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Saved %s (%d bytes, %s) from %s to %s\n", r.Reference, r.Size, r.ContentType, r.Source, r.Output)
	return err
}

// NewFetchCommand creates the fetch command.
func NewFetchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FetchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fetch <hash>",
		Short: "Download content through the gateway chain",
		Long: `Resolves a CID, ipfs:// URI or gateway URL and downloads it, trying each
configured gateway in order.

Examples:
  shc fetch bafkrei... -o letter.pdf
  shc fetch https://ipfs.io/ipfs/Qm.../page.txt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (default stdout)")

	return cmd
}

func runFetch(cmd *cobra.Command, opts *FetchOptions, raw string) error {
	ref, ok := contentref.Parse(raw)
	if !ok {
		return WrapExitError(ExitCommandError, "invalid content reference", gateway.ErrInvalidReference)
	}

	ctx := cmd.Context()
	a, err := opts.Connect(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize", err)
	}
	defer a.Close()

	content, err := a.Resolver.Fetch(ctx, ref)
	if err != nil {
		return WrapExitError(ExitFailure, "fetch failed", err)
	}

	if opts.Output == "" {
		_, err := cmd.OutOrStdout().Write(content.Data)
		return err
	}

	if err := os.WriteFile(opts.Output, content.Data, 0o644); err != nil {
		return WrapExitError(ExitCommandError, "failed to write output", err)
	}

	return opts.formatter(cmd.OutOrStdout()).Success(fetchResult{
		Reference:   ref.String(),
		Source:      content.Source,
		ContentType: content.ContentType,
		Size:        len(content.Data),
		Output:      opts.Output,
	})
}
