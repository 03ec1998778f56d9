package cli

import (
	"fmt"
	"io"

	"github.com/ASingh442/sikh-historical-chain/pkgs/contentref"
	"github.com/ASingh442/sikh-historical-chain/pkgs/gateway"
	"github.com/ipfs/go-cid"
	"github.com/spf13/cobra"
)

type parseResult struct {
	Input      string   `json:"input" yaml:"input"`
	Valid      bool     `json:"valid" yaml:"valid"`
	Canonical  string   `json:"canonical,omitempty" yaml:"canonical,omitempty"`
	Path       string   `json:"path,omitempty" yaml:"path,omitempty"`
	CIDVersion *uint64  `json:"cidVersion,omitempty" yaml:"cidVersion,omitempty"`
	Codec      string   `json:"codec,omitempty" yaml:"codec,omitempty"`
	Candidates []string `json:"candidates,omitempty" yaml:"candidates,omitempty"`
}

func (r parseResult) RenderText(w io.Writer) error {
	if !r.Valid {
		_, err := fmt.Fprintf(w, "%q is not a content reference\n", r.Input)
		return err
	}
	fmt.Fprintf(w, "Canonical: %s\n", r.Canonical)
	if r.CIDVersion != nil {
		fmt.Fprintf(w, "CID:       v%d %s\n", *r.CIDVersion, r.Codec)
	}
	for i, c := range r.Candidates {
		if _, err := fmt.Fprintf(w, "  %d. %s\n", i+1, c); err != nil {
			return err
		}
	}
	return nil
}

// NewParseCommand creates the parse command. It works offline.
func NewParseCommand(rootOpts *RootOptions) *cobra.Command {
	var gateways []string

	cmd := &cobra.Command{
		Use:   "parse <reference>",
		Short: "Normalize a CID, ipfs:// URI or gateway URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result := parseReference(args[0], gateways)
			if err := rootOpts.formatter(cmd.OutOrStdout()).Success(result); err != nil {
				return err
			}
			if !result.Valid {
				return WrapExitError(ExitCommandError, "invalid content reference", gateway.ErrInvalidReference)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&gateways, "gateway", nil, "gateway base URL to list candidates for (repeatable)")

	return cmd
}

func parseReference(raw string, gateways []string) parseResult {
	result := parseResult{Input: raw}
	ref, ok := contentref.Parse(raw)
	if !ok {
		return result
	}

	result.Valid = true
	result.Canonical = ref.String()
	result.Path = ref.Path
	if c, err := ref.CID(); err == nil {
		v := c.Version()
		result.CIDVersion = &v
		result.Codec = codecName(c)
	}
	result.Candidates = gateway.NewResolver(gateway.Config{Gateways: gateways}).Candidates(ref)
	return result
}

func codecName(c cid.Cid) string {
	switch c.Type() {
	case cid.Raw:
		return "raw"
	case cid.DagProtobuf:
		return "dag-pb"
	case cid.DagCBOR:
		return "dag-cbor"
	default:
		return fmt.Sprintf("0x%x", c.Type())
	}
}
