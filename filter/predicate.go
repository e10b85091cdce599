//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of trendetl.
//
// trendetl is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// trendetl is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with trendetl. If not, see https://www.gnu.org/licenses/.

package filter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aaronlmathis/trendetl/core"
	"github.com/diegoholiveira/jsonlogic"
)

// PredicateError wraps a predicate parse or validation failure. It matches core.ErrPredicate.
type PredicateError struct {
	Expr string
	Pos  int
	Msg  string
}

func (e *PredicateError) Error() string {
	if e.Pos >= 0 {
		return fmt.Sprintf("predicate %q: %s at offset %d", e.Expr, e.Msg, e.Pos)
	}
	return fmt.Sprintf("predicate %q: %s", e.Expr, e.Msg)
}

// Is reports whether target is core.ErrPredicate.
func (e *PredicateError) Is(target error) bool {
	return target == core.ErrPredicate
}

// Predicate is a parsed pushdown predicate such as "region in ('ca','gb','us')".
//
// Supported syntax: column comparisons with =, !=, <>, <, <=, >, >= against a string, number or
// boolean literal; "column [not] in (lit, ...)"; and, or, not and parentheses. Keywords are case
// insensitive. A record whose column is missing or null never satisfies a comparison.
type Predicate struct {
	expr string
	root node
}

// ParsePredicate parses expr. An empty expression yields a nil Predicate, which matches everything.
func ParsePredicate(expr string) (*Predicate, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}
	toks, err := lex(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{expr: expr, toks: toks}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t.pos, "unexpected %q", t.text)
	}
	return &Predicate{expr: expr, root: root}, nil
}

// MustParsePredicate is like ParsePredicate but panics on error.
func MustParsePredicate(expr string) *Predicate {
	p, err := ParsePredicate(expr)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Predicate) String() string {
	if p == nil {
		return ""
	}
	return p.expr
}

// Columns returns the sorted set of column names the predicate references.
func (p *Predicate) Columns() []string {
	if p == nil {
		return nil
	}
	set := map[string]bool{}
	p.root.columns(set)
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Validate checks that every referenced column exists in schema.
func (p *Predicate) Validate(schema core.Schema) error {
	for _, c := range p.Columns() {
		if !schema.Has(c) {
			return &PredicateError{Expr: p.expr, Pos: -1, Msg: fmt.Sprintf("unknown column %q", c)}
		}
	}
	return nil
}

// Filter compiles the predicate into a record filter.
func (p *Predicate) Filter() core.Filter {
	if p == nil {
		return Custom(func(core.Record) bool { return true })
	}
	return p.root.filter()
}

// PartitionPruner returns a pruner for the part of the predicate decidable from the given
// partition columns alone. It returns nil when no part of the predicate is.
//
// The pruner is conservative: a partition it rejects cannot contain a matching record, but
// records in accepted partitions must still pass Filter.
func (p *Predicate) PartitionPruner(partitionKeys []string) (*PartitionPruner, error) {
	if p == nil {
		return nil, nil
	}
	keys := make(map[string]bool, len(partitionKeys))
	for _, k := range partitionKeys {
		keys[k] = true
	}
	restricted := restrict(p.root, keys)
	if restricted == nil {
		return nil, nil
	}
	rule, err := json.Marshal(restricted.rule())
	if err != nil {
		return nil, fmt.Errorf("encode partition rule: %w", err)
	}
	if !jsonlogic.IsValid(bytes.NewReader(rule)) {
		return nil, &PredicateError{Expr: p.expr, Pos: -1, Msg: "cannot build partition rule " + string(rule)}
	}
	return &PartitionPruner{rule: rule}, nil
}

// PartitionPruner evaluates a partition-only predicate against Hive partition values.
type PartitionPruner struct {
	rule []byte
}

// Rule returns the JSON Logic rule the pruner applies.
func (pp *PartitionPruner) Rule() string {
	return string(pp.rule)
}

// Match reports whether a partition with the given key=value pairs may hold matching records.
func (pp *PartitionPruner) Match(values map[string]string) (bool, error) {
	if pp == nil {
		return true, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return false, fmt.Errorf("encode partition values: %w", err)
	}
	var result bytes.Buffer
	if err := jsonlogic.Apply(bytes.NewReader(pp.rule), bytes.NewReader(data), &result); err != nil {
		return false, fmt.Errorf("apply partition rule: %w", err)
	}
	return strings.TrimSpace(result.String()) == "true", nil
}

// Custom creates a filter using a user-provided predicate function
func Custom(predicate func(core.Record) bool) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		return predicate(record), nil
	})
}

// node is a predicate AST node. Nodes evaluate with SQL three-valued logic: a comparison on a
// missing or null column is neither true nor false, so filter and negated can both reject a record.
type node interface {
	// filter matches records on which the node is true.
	filter() core.Filter
	// negated matches records on which the node is false.
	negated() core.Filter
	// rule renders the node as JSON Logic over string-valued partition data.
	rule() interface{}
	columns(set map[string]bool)
}

type andNode struct{ children []node }
type orNode struct{ children []node }
type notNode struct{ child node }

type compareNode struct {
	column string
	op     string
	value  interface{}
}

type inNode struct {
	column string
	values []interface{}
	negate bool
}

func (n *andNode) filter() core.Filter {
	fs := make([]core.Filter, len(n.children))
	for i, c := range n.children {
		fs[i] = c.filter()
	}
	return And(fs...)
}

func (n *andNode) negated() core.Filter {
	fs := make([]core.Filter, len(n.children))
	for i, c := range n.children {
		fs[i] = c.negated()
	}
	return Or(fs...)
}

func (n *andNode) rule() interface{} {
	rs := make([]interface{}, len(n.children))
	for i, c := range n.children {
		rs[i] = c.rule()
	}
	return map[string]interface{}{"and": rs}
}

func (n *andNode) columns(set map[string]bool) {
	for _, c := range n.children {
		c.columns(set)
	}
}

func (n *orNode) filter() core.Filter {
	fs := make([]core.Filter, len(n.children))
	for i, c := range n.children {
		fs[i] = c.filter()
	}
	return Or(fs...)
}

func (n *orNode) negated() core.Filter {
	fs := make([]core.Filter, len(n.children))
	for i, c := range n.children {
		fs[i] = c.negated()
	}
	return And(fs...)
}

func (n *orNode) rule() interface{} {
	rs := make([]interface{}, len(n.children))
	for i, c := range n.children {
		rs[i] = c.rule()
	}
	return map[string]interface{}{"or": rs}
}

func (n *orNode) columns(set map[string]bool) {
	for _, c := range n.children {
		c.columns(set)
	}
}

func (n *notNode) filter() core.Filter { return n.child.negated() }

func (n *notNode) negated() core.Filter { return n.child.filter() }

func (n *notNode) rule() interface{} {
	return map[string]interface{}{"!": []interface{}{n.child.rule()}}
}

func (n *notNode) columns(set map[string]bool) { n.child.columns(set) }

func (n *compareNode) filter() core.Filter {
	switch n.op {
	case "=":
		return Equals(n.column, n.value)
	case "!=":
		return And(present(n.column), Not(Equals(n.column, n.value)))
	}
	threshold := toFloat(n.value)
	switch n.op {
	case "<":
		return LessThan(n.column, threshold)
	case ">":
		return GreaterThan(n.column, threshold)
	case "<=":
		return AtMost(n.column, threshold)
	default: // ">="
		return AtLeast(n.column, threshold)
	}
}

func (n *compareNode) negated() core.Filter {
	switch n.op {
	case "=":
		return And(present(n.column), Not(Equals(n.column, n.value)))
	case "!=":
		return Equals(n.column, n.value)
	}
	threshold := toFloat(n.value)
	switch n.op {
	case "<":
		return AtLeast(n.column, threshold)
	case ">":
		return AtMost(n.column, threshold)
	case "<=":
		return GreaterThan(n.column, threshold)
	default: // ">="
		return LessThan(n.column, threshold)
	}
}

func (n *compareNode) rule() interface{} {
	v := []interface{}{map[string]interface{}{"var": n.column}, ruleLiteral(n.value, n.op)}
	switch n.op {
	case "=":
		return map[string]interface{}{"==": v}
	default:
		return map[string]interface{}{n.op: v}
	}
}

func (n *compareNode) columns(set map[string]bool) { set[n.column] = true }

func (n *inNode) filter() core.Filter {
	f := In(n.column, n.values...)
	if n.negate {
		return And(present(n.column), Not(f))
	}
	return f
}

func (n *inNode) negated() core.Filter {
	f := In(n.column, n.values...)
	if n.negate {
		return f
	}
	return And(present(n.column), Not(f))
}

func (n *inNode) rule() interface{} {
	vals := make([]interface{}, len(n.values))
	for i, v := range n.values {
		vals[i] = ruleLiteral(v, "in")
	}
	r := map[string]interface{}{"in": []interface{}{map[string]interface{}{"var": n.column}, vals}}
	if n.negate {
		return map[string]interface{}{"!": []interface{}{r}}
	}
	return r
}

func (n *inNode) columns(set map[string]bool) { set[n.column] = true }

// present matches records where the column holds a non-null value.
func present(column string) core.Filter {
	return Custom(func(r core.Record) bool { return r[column] != nil })
}

// ruleLiteral renders a literal for JSON Logic evaluation over string partition values.
// Ordering comparisons stay numeric; equality and membership compare as text.
func ruleLiteral(v interface{}, op string) interface{} {
	switch op {
	case "<", "<=", ">", ">=":
		return v
	}
	return fmt.Sprintf("%v", v)
}

func toFloat(v interface{}) float64 {
	switch x := v.(type) {
	case int64:
		return float64(x)
	case float64:
		return x
	}
	return 0
}

// restrict returns the strongest sub-predicate implied by n that references only keys,
// or nil if there is none.
func restrict(n node, keys map[string]bool) node {
	if a, ok := n.(*andNode); ok {
		var kept []node
		for _, c := range a.children {
			if r := restrict(c, keys); r != nil {
				kept = append(kept, r)
			}
		}
		switch len(kept) {
		case 0:
			return nil
		case 1:
			return kept[0]
		default:
			return &andNode{children: kept}
		}
	}
	set := map[string]bool{}
	n.columns(set)
	for c := range set {
		if !keys[c] {
			return nil
		}
	}
	return n
}
