package querydoc

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/querykit/internal/ir"
	"github.com/roach88/querykit/internal/queryir"
)

//go:embed schema.cue
var schemaCUE string

// Document is a query stored as data.
type Document struct {
	Entity string   `json:"entity" yaml:"entity"`
	Where  *Node    `json:"where,omitempty" yaml:"where,omitempty"`
	Order  []string `json:"order,omitempty" yaml:"order,omitempty"`
	Offset int      `json:"offset,omitempty" yaml:"offset,omitempty"`
	Limit  *int     `json:"limit,omitempty" yaml:"limit,omitempty"`
}

// Node is one node of the where tree: a compound (All, Any, Not) or a
// leaf comparison (Field, Op, Value, Options).
type Node struct {
	All []Node `json:"all,omitempty" yaml:"all,omitempty"`
	Any []Node `json:"any,omitempty" yaml:"any,omitempty"`
	Not *Node  `json:"not,omitempty" yaml:"not,omitempty"`

	Field   string `json:"field,omitempty" yaml:"field,omitempty"`
	Op      string `json:"op,omitempty" yaml:"op,omitempty"`
	Value   any    `json:"value,omitempty" yaml:"value,omitempty"`
	Options string `json:"options,omitempty" yaml:"options,omitempty"`
}

// Format is a document encoding.
type Format int

const (
	FormatYAML Format = iota
	FormatJSON
	FormatCUE
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatCUE:
		return "cue"
	}
	return "yaml"
}

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".cue":
		return FormatCUE, nil
	}
	return 0, fmt.Errorf("querydoc: unknown document extension %q", filepath.Ext(path))
}

// Error reports a malformed document. Path locates the offending node,
// e.g. "where.all[1].op".
type Error struct {
	Path    string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	if e.Path == "" {
		return "querydoc: " + e.Message
	}
	return fmt.Sprintf("querydoc: %s: %s", e.Path, e.Message)
}

// Load reads a document file, choosing the format from its extension.
func Load(path string) (Document, error) {
	format, err := FormatOf(path)
	if err != nil {
		return Document{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("querydoc: read %s: %w", path, err)
	}
	return Parse(data, format, path)
}

// Parse decodes a document. Unknown keys are rejected in every format.
// name labels CUE positions in errors.
func Parse(data []byte, format Format, name string) (Document, error) {
	var (
		doc Document
		err error
	)
	switch format {
	case FormatJSON:
		doc, err = parseJSON(data)
	case FormatCUE:
		doc, err = parseCUE(data, name)
	default:
		doc, err = parseYAML(data)
	}
	if err != nil {
		return Document{}, err
	}
	if doc.Entity == "" {
		return Document{}, &Error{Path: "entity", Message: "entity is required"}
	}
	return doc, nil
}

func parseYAML(data []byte) (Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return Document{}, &Error{Message: fmt.Sprintf("parse yaml: %v", err)}
	}
	return doc, nil
}

// JSON numbers stay json.Number so that 1 and 1.0 decode to different
// kinds.
func parseJSON(data []byte) (Document, error) {
	var doc Document
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return Document{}, &Error{Message: fmt.Sprintf("parse json: %v", err)}
	}
	return doc, nil
}

func parseCUE(data []byte, name string) (Document, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Document{}, formatCUEError(err)
	}

	v := ctx.CompileBytes(data, cue.Filename(name))
	if err := v.Err(); err != nil {
		return Document{}, formatCUEError(err)
	}
	v = schema.LookupPath(cue.ParsePath("#Query")).Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Document{}, formatCUEError(err)
	}

	var doc Document
	if err := v.Decode(&doc); err != nil {
		return Document{}, formatCUEError(err)
	}
	return doc, nil
}

// formatCUEError keeps the first error and its position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &Error{Message: err.Error()}
	}
	first := errs[0]
	e := &Error{Message: first.Error()}
	if pos := errors.Positions(first); len(pos) > 0 {
		e.Pos = pos[0]
	}
	return e
}

// Fetch converts the document into a backend-neutral fetch.
func (d Document) Fetch() (queryir.Fetch, error) {
	f := queryir.Fetch{Entity: d.Entity}

	if d.Where != nil {
		p, err := d.Where.predicate("where")
		if err != nil {
			return queryir.Fetch{}, err
		}
		f.Predicate = p
	}

	for i, o := range d.Order {
		s, err := ParseOrder(o)
		if err != nil {
			return queryir.Fetch{}, &Error{Path: fmt.Sprintf("order[%d]", i), Message: err.Error()}
		}
		f.Sort = append(f.Sort, s)
	}

	if d.Limit != nil {
		f.Range = queryir.Window(d.Offset, *d.Limit)
	} else {
		f.Range = queryir.FromOffset(d.Offset)
	}
	return f, nil
}

// Descriptor names the document's entity.
func (d Document) Descriptor() queryir.Descriptor {
	return queryir.Descriptor{Entity: d.Entity}
}

// ParseOrder parses "field", "+field" or "-field".
func ParseOrder(s string) (queryir.SortDirective, error) {
	dir := queryir.Ascending
	switch {
	case strings.HasPrefix(s, "-"):
		dir = queryir.Descending
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	path, err := parsePath(s)
	if err != nil {
		return queryir.SortDirective{}, err
	}
	return queryir.SortDirective{Field: path, Direction: dir}, nil
}

func parsePath(s string) (queryir.Path, error) {
	if s == "" {
		return "", fmt.Errorf("empty field path")
	}
	for _, seg := range strings.Split(s, ".") {
		if seg == "" {
			return "", fmt.Errorf("field path %q has an empty segment", s)
		}
	}
	return queryir.Path(s), nil
}

func (n Node) shapes() []string {
	var out []string
	if n.All != nil {
		out = append(out, "all")
	}
	if n.Any != nil {
		out = append(out, "any")
	}
	if n.Not != nil {
		out = append(out, "not")
	}
	if n.Field != "" {
		out = append(out, "field")
	}
	return out
}

func (n Node) predicate(at string) (queryir.Predicate, error) {
	shapes := n.shapes()
	if len(shapes) != 1 {
		msg := "node needs one of all, any, not or field"
		if len(shapes) > 1 {
			msg = "node mixes " + strings.Join(shapes, " and ")
		}
		return nil, &Error{Path: at, Message: msg}
	}

	switch shapes[0] {
	case "all", "any":
		list := n.All
		if shapes[0] == "any" {
			list = n.Any
		}
		preds := make([]queryir.Predicate, len(list))
		for i, child := range list {
			p, err := child.predicate(fmt.Sprintf("%s.%s[%d]", at, shapes[0], i))
			if err != nil {
				return nil, err
			}
			preds[i] = p
		}
		if shapes[0] == "any" {
			return queryir.Or{Predicates: preds}, nil
		}
		return queryir.And{Predicates: preds}, nil
	case "not":
		p, err := n.Not.predicate(at + ".not")
		if err != nil {
			return nil, err
		}
		return queryir.Negate(p), nil
	}
	return n.comparison(at)
}

func (n Node) comparison(at string) (queryir.Comparison, error) {
	fail := func(format string, args ...any) (queryir.Comparison, error) {
		return queryir.Comparison{}, &Error{Path: at, Message: fmt.Sprintf(format, args...)}
	}

	field, err := parsePath(n.Field)
	if err != nil {
		return fail("%v", err)
	}
	op := queryir.OpEqual
	if n.Op != "" {
		var ok bool
		if op, ok = queryir.ParseOperator(n.Op); !ok {
			return fail("unknown op %q", n.Op)
		}
	}
	opts, ok := queryir.ParseOptions(n.Options)
	if !ok {
		return fail("unknown options %q", n.Options)
	}

	c := queryir.Comparison{Field: field, Op: op, Options: opts}
	if !op.TakesValue() {
		if n.Value != nil {
			return fail("%s takes no value", op)
		}
		return c, nil
	}

	v, err := Literal(n.Value)
	if err != nil {
		return fail("value: %v", err)
	}
	switch op {
	case queryir.OpBetween:
		if arr, ok := v.(ir.IRArray); !ok || len(arr) != 2 {
			return fail("between takes a [min, max] list")
		}
	case queryir.OpIn:
		if _, ok := v.(ir.IRArray); !ok {
			return fail("in takes a list")
		}
	}
	c.Value = v
	return c, nil
}

// Literal converts a decoded document value into an IRValue, restoring
// $time and $keypath tags.
func Literal(v any) (ir.IRValue, error) {
	val, err := ir.FromGo(v)
	if err != nil {
		return nil, err
	}
	return ir.Untag(val)
}

// FromFetch renders a fetch as a document.
func FromFetch(f queryir.Fetch) Document {
	d := Document{Entity: f.Entity, Offset: f.Range.Offset}
	if f.Predicate != nil {
		n := nodeOf(f.Predicate)
		d.Where = &n
	}
	for _, s := range f.Sort {
		o := string(s.Field)
		if s.Direction == queryir.Descending {
			o = "-" + o
		}
		d.Order = append(d.Order, o)
	}
	if f.Range.HasLimit {
		limit := f.Range.Limit
		d.Limit = &limit
	}
	return d
}

func nodeOf(p queryir.Predicate) Node {
	switch p := p.(type) {
	case queryir.And:
		return Node{All: nodesOf(p.Predicates)}
	case queryir.Or:
		return Node{Any: nodesOf(p.Predicates)}
	case queryir.Not:
		inner := nodeOf(p.Predicate)
		return Node{Not: &inner}
	case queryir.Comparison:
		n := Node{Field: string(p.Field), Op: p.Op.String(), Options: p.Options.String()}
		if p.Op.TakesValue() {
			n.Value = plain(p.Value)
		}
		return n
	}
	return Node{}
}

func nodesOf(preds []queryir.Predicate) []Node {
	out := make([]Node, len(preds))
	for i, p := range preds {
		out[i] = nodeOf(p)
	}
	return out
}

// plain is the inverse of Literal.
func plain(v ir.IRValue) any {
	switch v := v.(type) {
	case ir.IRTime:
		return map[string]any{"$time": v.Time().UTC().Format(time.RFC3339Nano)}
	case ir.IRKeyPath:
		return map[string]any{"$keypath": string(v)}
	case ir.IRArray:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = plain(elem)
		}
		return out
	case ir.IRObject:
		out := make(map[string]any, len(v))
		for k, elem := range v {
			out[k] = plain(elem)
		}
		return out
	}
	return ir.ToGo(v)
}

// Marshal encodes d in the given format. CUE output is the JSON form,
// which CUE reads as is.
func Marshal(d Document, format Format) ([]byte, error) {
	if format == FormatYAML {
		return yaml.Marshal(d)
	}
	return json.MarshalIndent(d, "", "  ")
}
