package storage

import (
	"encoding/json"

	"github.com/itchyny/gojq"
)

// JQFilter is the filter DSL behind every `list_*` facade operation
// (patterns, synergies, suggestions). A filter is a jq boolean expression
// evaluated against the JSON projection of each row; an empty expression
// matches everything. This keeps ad-hoc filtering (by kind, by confidence
// threshold, by status, by depth) out of hand-rolled SQL WHERE-builders.
type JQFilter struct {
	code *gojq.Code
}

// NewJQFilter compiles expr once so repeated Match calls don't re-parse.
// An empty expr matches every row.
func NewJQFilter(expr string) (*JQFilter, error) {
	if expr == "" {
		expr = "true"
	}
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, err
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, err
	}
	return &JQFilter{code: code}, nil
}

// Match evaluates the compiled filter against v (any JSON-marshalable
// value) and reports whether it produced a truthy result.
func (f *JQFilter) Match(v interface{}) (bool, error) {
	if f == nil || f.code == nil {
		return true, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return false, err
	}
	iter := f.code.Run(generic)
	out, ok := iter.Next()
	if !ok {
		return false, nil
	}
	if err, ok := out.(error); ok {
		return false, err
	}
	truthy, _ := out.(bool)
	return truthy, nil
}
