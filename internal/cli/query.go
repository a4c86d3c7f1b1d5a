package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/querykit/internal/ir"
	"github.com/roach88/querykit/internal/querydoc"
	"github.com/roach88/querykit/internal/queryset"
)

// QueryOptions holds the flags that build a query set. Flags refine a
// query document given with --query: --where and --exclude add predicates,
// while --entity, --order, --offset and --limit replace the document's.
type QueryOptions struct {
	File    string
	Entity  string
	Where   []string
	Exclude []string
	Order   []string
	Offset  int
	Limit   int
}

func (o *QueryOptions) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&o.File, "query", "q", "", "query document (.yaml, .json or .cue)")
	f.StringVarP(&o.Entity, "entity", "e", "", "entity to query")
	f.StringArrayVarP(&o.Where, "where", "w", nil, "filter field:op[:value], repeatable")
	f.StringArrayVarP(&o.Exclude, "exclude", "x", nil, "exclude field:op[:value], repeatable")
	f.StringSliceVarP(&o.Order, "order", "o", nil, "sort keys, [-]field, comma separated")
	f.IntVar(&o.Offset, "offset", 0, "records to skip")
	f.IntVar(&o.Limit, "limit", 0, "maximum records")
}

// ParseCondition parses a field:op[:value] flag. The value is read as a
// YAML scalar or flow sequence, so 25 is a number, true a boolean and
// [red, blue] a list.
func ParseCondition(s string) (querydoc.Node, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return querydoc.Node{}, fmt.Errorf("condition %q: want field:op[:value]", s)
	}
	n := querydoc.Node{Field: parts[0], Op: parts[1]}
	if len(parts) == 3 {
		if err := yaml.Unmarshal([]byte(parts[2]), &n.Value); err != nil {
			return querydoc.Node{}, fmt.Errorf("condition %q: %w", s, err)
		}
	}
	return n, nil
}

// Document merges the query file and flags into one query document.
func (o *QueryOptions) Document(cmd *cobra.Command) (querydoc.Document, error) {
	var doc querydoc.Document
	if o.File != "" {
		var err error
		if doc, err = querydoc.Load(o.File); err != nil {
			return doc, err
		}
	}
	if o.Entity != "" {
		doc.Entity = o.Entity
	}
	if doc.Entity == "" {
		return doc, fmt.Errorf("entity is required (--entity or a --query document)")
	}

	var nodes []querydoc.Node
	if doc.Where != nil {
		nodes = append(nodes, *doc.Where)
	}
	for _, s := range o.Where {
		n, err := ParseCondition(s)
		if err != nil {
			return doc, err
		}
		nodes = append(nodes, n)
	}
	for _, s := range o.Exclude {
		n, err := ParseCondition(s)
		if err != nil {
			return doc, err
		}
		nodes = append(nodes, querydoc.Node{Not: &n})
	}
	switch len(nodes) {
	case 0:
		doc.Where = nil
	case 1:
		doc.Where = &nodes[0]
	default:
		doc.Where = &querydoc.Node{All: nodes}
	}

	if len(o.Order) > 0 {
		doc.Order = o.Order
	}
	if cmd.Flags().Changed("offset") {
		doc.Offset = o.Offset
	}
	if cmd.Flags().Changed("limit") {
		limit := o.Limit
		doc.Limit = &limit
	}
	return doc, nil
}

// querySet builds the query set the flags describe over the session's
// backend.
func (o *QueryOptions) querySet(cmd *cobra.Command, s *session) (queryset.QuerySet[ir.IRObject], error) {
	doc, err := o.Document(cmd)
	if err != nil {
		return queryset.QuerySet[ir.IRObject]{}, err
	}
	f, err := doc.Fetch()
	if err != nil {
		return queryset.QuerySet[ir.IRObject]{}, err
	}
	return queryset.NewWithState(s.backend, doc.Descriptor(), f.Predicate, f.Sort, f.Range, s.options()...), nil
}

// QueryResult is the payload of the record commands.
type QueryResult struct {
	Query   string        `json:"query"`
	Count   *int          `json:"count,omitempty"`
	Found   *bool         `json:"found,omitempty"`
	Records []ir.IRObject `json:"records,omitempty"`
}

type recordOp struct {
	name  string
	short string
	run   func(ctx context.Context, qs queryset.QuerySet[ir.IRObject], res *QueryResult) error
}

func single(record ir.IRObject, found bool, res *QueryResult) {
	res.Found = &found
	if found {
		res.Records = []ir.IRObject{record}
	}
}

var recordOps = []recordOp{
	{"list", "List matching records", func(ctx context.Context, qs queryset.QuerySet[ir.IRObject], res *QueryResult) error {
		records, err := qs.All(ctx)
		res.Records = records
		return err
	}},
	{"count", "Count matching records", func(ctx context.Context, qs queryset.QuerySet[ir.IRObject], res *QueryResult) error {
		n, err := qs.Count(ctx)
		res.Count = &n
		return err
	}},
	{"first", "Show the first matching record", func(ctx context.Context, qs queryset.QuerySet[ir.IRObject], res *QueryResult) error {
		r, found, err := qs.First(ctx)
		single(r, found, res)
		return err
	}},
	{"last", "Show the last matching record (needs --order)", func(ctx context.Context, qs queryset.QuerySet[ir.IRObject], res *QueryResult) error {
		r, found, err := qs.Last(ctx)
		single(r, found, res)
		return err
	}},
	{"one", "Show the only matching record", func(ctx context.Context, qs queryset.QuerySet[ir.IRObject], res *QueryResult) error {
		r, err := qs.One(ctx)
		single(r, err == nil, res)
		return err
	}},
	{"delete", "Delete matching records", func(ctx context.Context, qs queryset.QuerySet[ir.IRObject], res *QueryResult) error {
		n, err := qs.Delete(ctx)
		res.Count = &n
		return err
	}},
}

// NewRecordsCommand creates one of the record commands (list, count,
// first, last, one, delete).
func NewRecordsCommand(rootOpts *RootOptions, op recordOp) *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   op.name,
		Short: op.short,
		Long: op.short + `.

Conditions use field:op[:value]. Operators are the names eq, ne, gt, gte,
lt, lte, like, matches, begins_with, ends_with, between, in, contains,
is_null, is_true, is_false or the symbols == != > >= < <=.

Exit codes:
  0 - Success
  1 - Query error (NO_MATCH, UNKNOWN_FIELD, ...)
  2 - Command error (config, backend, flags)

Examples:
  querykit ` + op.name + ` --entity Person --where age:gt:30 --order=-age
  querykit ` + op.name + ` --query adults.yaml --limit 5 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecords(cmd, rootOpts, opts, op)
		},
	}
	opts.register(cmd)
	return cmd
}

func runRecords(cmd *cobra.Command, rootOpts *RootOptions, opts *QueryOptions, op recordOp) error {
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
	s.out.VerboseLog("query: %s", qs)

	res := QueryResult{Query: qs.String()}
	if err := op.run(ctx, qs, &res); err != nil {
		return s.out.Fail(CodeQuery, op.name+" failed", err)
	}

	if s.out.Format == "json" {
		return s.out.Success(res)
	}
	if err := s.out.Records(res.Records); err != nil {
		return err
	}
	w := s.out.Writer
	switch {
	case res.Count != nil:
		fmt.Fprintln(w, *res.Count)
	case res.Found != nil && !*res.Found:
		fmt.Fprintln(w, "no record")
	}
	return nil
}
