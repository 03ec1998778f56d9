package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ASingh442/sikh-historical-chain/pkgs/ledger"
	"github.com/spf13/cobra"
)

// RecordsOptions holds flags for the records command.
type RecordsOptions struct {
	*RootOptions
	Page     int
	PageSize int
	Query    string
	Verified bool
	Hash     string
}

// recordView is the printable form of a ledger record.
type recordView struct {
	ID          uint64   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description" yaml:"description"`
	EventDate   string   `json:"eventDate" yaml:"eventDate"`
	Source      string   `json:"source" yaml:"source"`
	Contributor string   `json:"contributor" yaml:"contributor"`
	Kind        string   `json:"kind" yaml:"kind"`
	Content     []string `json:"content,omitempty" yaml:"content,omitempty"`
	Verified    bool     `json:"verified" yaml:"verified"`
	Approver    string   `json:"approver,omitempty" yaml:"approver,omitempty"`
	CreatedAt   string   `json:"createdAt" yaml:"createdAt"`
	TxHash      string   `json:"txHash,omitempty" yaml:"txHash,omitempty"`
}

func newRecordView(r ledger.Record) recordView {
	v := recordView{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		EventDate:   r.EventDate,
		Source:      r.Source,
		Contributor: r.Contributor.Hex(),
		Kind:        string(r.Kind()),
		Verified:    r.Verified,
		CreatedAt:   r.CreatedAt.UTC().Format(time.RFC3339),
		TxHash:      r.PendingTxHash,
	}
	for _, ref := range r.ContentRefs {
		v.Content = append(v.Content, ref.String())
	}
	if r.Approver != nil {
		v.Approver = r.Approver.Hex()
	}
	return v
}

// recordPage is the records command result.
type recordPage struct {
	Records    []recordView `json:"records" yaml:"records"`
	Page       int          `json:"page" yaml:"page"`
	TotalPages int          `json:"totalPages" yaml:"totalPages"`
	Total      int          `json:"total" yaml:"total"`
	RangeStart int          `json:"rangeStart" yaml:"rangeStart"`
	RangeEnd   int          `json:"rangeEnd" yaml:"rangeEnd"`

	contributors []string
}

func (p recordPage) RenderText(w io.Writer) error {
	if p.Total == 0 {
		_, err := fmt.Fprintln(w, "No records found.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tDATE\tKIND\tCONTRIBUTOR\tVERIFIED\tTX")
	for i, r := range p.Records {
		verified := "-"
		if r.Verified {
			verified = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, truncate(r.Title, 40), r.EventDate, r.Kind, p.contributors[i], verified, r.TxHash)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nShowing %d-%d of %d (page %d/%d)\n", p.RangeStart, p.RangeEnd, p.Total, p.Page, p.TotalPages)
	return err
}

func buildRecordPage(records []ledger.Record, size, page int) recordPage {
	start, end := ledger.PageRange(len(records), size, page)
	out := recordPage{
		Records:    []recordView{},
		Page:       page,
		TotalPages: ledger.TotalPages(len(records), size),
		Total:      len(records),
		RangeStart: start,
		RangeEnd:   end,
	}
	for _, r := range ledger.Page(records, size, page) {
		out.Records = append(out.Records, newRecordView(r))
		out.contributors = append(out.contributors, r.ContributorShort())
	}
	return out
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}

// NewRecordsCommand creates the records command.
func NewRecordsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "records",
		Short: "List ledger records, newest first",
		Long: `Reads the whole ledger, links the last pending submission to its record
and prints one page.

Examples:
  shc records
  shc records --page 2 --query anandpur
  shc records --hash bafy... --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecords(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Page, "page", "p", 1, "page number (1-based)")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", 0, "entries per page (default from PAGE_SIZE)")
	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "case-insensitive search")
	cmd.Flags().BoolVar(&opts.Verified, "verified", false, "only verified records")
	cmd.Flags().StringVar(&opts.Hash, "hash", "", "jump to the page holding this content hash")

	return cmd
}

func runRecords(cmd *cobra.Command, opts *RecordsOptions) error {
	if opts.Page < 1 {
		return WrapExitError(ExitCommandError, "invalid page", fmt.Errorf("page must be >= 1, got %d", opts.Page))
	}

	ctx := cmd.Context()
	a, err := opts.Connect(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize", err)
	}
	defer a.Close()

	records, err := a.Session.Reload(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to load ledger", err)
	}

	size := opts.PageSize
	if size <= 0 {
		size = a.Settings.PageSize
	}

	filtered := ledger.Filter(records, opts.Query, opts.Verified)
	page := opts.Page
	if opts.Hash != "" {
		p, ok := ledger.PageOfHash(filtered, size, opts.Hash)
		if !ok {
			return WrapExitError(ExitFailure, "no record carries that hash", fmt.Errorf("%s", opts.Hash))
		}
		page = p
	}

	return opts.formatter(cmd.OutOrStdout()).Success(buildRecordPage(filtered, size, page))
}
