package filter

import (
	"fmt"
	"path/filepath"

	"github.com/google/cel-go/cel"
)

// Filter admits or rejects files with a CEL expression evaluated against
// path metadata. The expression sees four variables: path (the full path
// as queued), name (base name), ext (filename extension with dot) and
// size (bytes).
type Filter struct {
	expr string
	prg  cel.Program
}

// Compile builds a filter from a CEL expression. The expression must
// evaluate to a boolean.
func Compile(expr string) (*Filter, error) {
	env, err := cel.NewEnv(
		cel.Variable("path", cel.StringType),
		cel.Variable("name", cel.StringType),
		cel.Variable("ext", cel.StringType),
		cel.Variable("size", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("building filter environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compiling filter %q: %w", expr, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("filter %q must evaluate to a boolean, got %s", expr, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("building filter program: %w", err)
	}

	return &Filter{expr: expr, prg: prg}, nil
}

// Match reports whether the file passes the filter.
func (f *Filter) Match(path string, size int64) (bool, error) {
	out, _, err := f.prg.Eval(map[string]any{
		"path": path,
		"name": filepath.Base(path),
		"ext":  filepath.Ext(path),
		"size": size,
	})
	if err != nil {
		return false, fmt.Errorf("evaluating filter %q on %s: %w", f.expr, path, err)
	}

	match, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter %q returned %T, want bool", f.expr, out.Value())
	}
	return match, nil
}

func (f *Filter) String() string {
	return f.expr
}
