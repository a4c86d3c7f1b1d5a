package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/querykit/internal/querydoc"
)

// ExplainResult describes how a query set compiles on the configured
// backend.
type ExplainResult struct {
	Query       string `json:"query"`
	Fingerprint string `json:"fingerprint"`
	Plan        string `json:"plan"`

	// Document is the normalized query document, in YAML.
	Document string `json:"document"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Show how a query compiles without running it",
		Long: `Compile the query against the configured backend and print its
rendered form, fingerprint, backend plan (SQL for the SQL backends) and the
equivalent normalized query document.

Examples:
  querykit explain --entity Person --where name:begins_with:a --order=-age
  querykit explain --query adults.cue --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(cmd, rootOpts, opts)
		},
	}
	opts.register(cmd)
	return cmd
}

func runExplain(cmd *cobra.Command, rootOpts *RootOptions, opts *QueryOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := openSession(ctx, rootOpts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	qs, err := opts.querySet(cmd, s)
	if err != nil {
		return s.out.Fail(CodeQuery, "invalid query", err)
	}
	spec, err := qs.CompileFetchSpec()
	if err != nil {
		return s.out.Fail(CodeQuery, "compile failed", err)
	}
	fp, err := qs.Fingerprint()
	if err != nil {
		return s.out.Fail(CodeQuery, "fingerprint failed", err)
	}
	doc, err := querydoc.Marshal(querydoc.FromFetch(qs.Fetch()), querydoc.FormatYAML)
	if err != nil {
		return s.out.Fail(CodeQuery, "render document", err)
	}

	res := ExplainResult{Query: qs.String(), Fingerprint: fp, Plan: spec.Explain(), Document: string(doc)}
	if s.out.Format == "json" {
		return s.out.Success(res)
	}
	w := s.out.Writer
	fmt.Fprintf(w, "query:       %s\n", res.Query)
	fmt.Fprintf(w, "fingerprint: %s\n", res.Fingerprint)
	fmt.Fprintf(w, "plan:        %s\n", res.Plan)
	fmt.Fprintf(w, "document:\n%s", res.Document)
	return nil
}
