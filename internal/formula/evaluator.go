package formula

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	lru "github.com/hashicorp/golang-lru/v2"

	"tablero/api/internal/board"
)

// Result is a computed cell: a number, or the "Error" marker.
type Result struct {
	Value float64
	Err   bool
}

const errorMarker = "Error"

var errorResult = Result{Err: true}

func (r Result) MarshalJSON() ([]byte, error) {
	if r.Err {
		return json.Marshal(errorMarker)
	}
	return json.Marshal(r.Value)
}

func (r Result) String() string {
	if r.Err {
		return errorMarker
	}
	return strconv.FormatFloat(r.Value, 'f', -1, 64)
}

var tokenPattern = regexp.MustCompile(`\[([^\[\]]+)\]`)

// programCacheSize bounds compiled programs kept across boards; formula text is
// user input, so the least recently used programs are evicted.
const programCacheSize = 1024

// keyed by rewritten expression; every variable is a float64
var programCache = mustProgramCache(programCacheSize)

func mustProgramCache(size int) *lru.Cache[string, *vm.Program] {
	cache, err := lru.New[string, *vm.Program](size)
	if err != nil {
		panic(err)
	}
	return cache
}

var functions = []expr.Option{
	expr.Function("sqrt", unary(math.Sqrt)),
	expr.Function("pow", binary(math.Pow)),
	expr.Function("mod", binary(math.Mod)),
}

// Evaluate substitutes [Name] tokens with the matching column values and runs the expression.
func Evaluate(expression string, columns []board.Column, values map[string]board.Value) Result {
	byName := make(map[string]board.Column, len(columns))
	for _, c := range columns {
		if _, exists := byName[c.Name]; !exists {
			byName[c.Name] = c
		}
	}

	env := map[string]any{}
	idents := map[string]string{}
	unresolved := false
	rewritten := tokenPattern.ReplaceAllStringFunc(expression, func(token string) string {
		name := token[1 : len(token)-1]
		if ident, ok := idents[name]; ok {
			return ident
		}
		col, ok := byName[name]
		if !ok {
			unresolved = true
			return token
		}
		ident := fmt.Sprintf("col_%d", len(idents))
		idents[name] = ident
		env[ident] = substitute(col, values)
		return ident
	})
	if unresolved {
		return errorResult
	}

	program, err := compile(rewritten, env)
	if err != nil {
		return errorResult
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return errorResult
	}
	f, ok := toFloat(out)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return errorResult
	}
	return Result{Value: f}
}

func substitute(col board.Column, values map[string]board.Value) float64 {
	if col.Type == board.TypeFormula {
		return 0
	}
	v, ok := values[col.ID]
	if !ok {
		return 0
	}
	return v.Numeric()
}

func compile(rewritten string, env map[string]any) (*vm.Program, error) {
	if cached, ok := programCache.Get(rewritten); ok {
		return cached, nil
	}
	options := append([]expr.Option{expr.Env(env), expr.AsAny()}, functions...)
	program, err := expr.Compile(rewritten, options...)
	if err != nil {
		return nil, err
	}
	programCache.Add(rewritten, program)
	return program, nil
}

// EvaluateCell computes one FORMULA cell of the board.
func EvaluateCell(b *board.Board, columnID, itemID string) (Result, error) {
	col, ok := b.Column(columnID)
	if !ok {
		return Result{}, &board.NotFoundError{Kind: "column", ID: columnID}
	}
	if col.Type != board.TypeFormula {
		return Result{}, &board.ValidationError{Field: "columnId", Message: "column is not a formula"}
	}
	item, ok := b.Item(itemID)
	if !ok {
		return Result{}, &board.NotFoundError{Kind: "item", ID: itemID}
	}
	return Evaluate(col.Config.Formula, b.Columns, item.Values), nil
}

// Annotate computes every formula cell, keyed by item id then column id.
func Annotate(b *board.Board) map[string]map[string]Result {
	out := make(map[string]map[string]Result, len(b.Items))
	var formulas []board.Column
	for _, c := range b.Columns {
		if c.Type == board.TypeFormula {
			formulas = append(formulas, c)
		}
	}
	if len(formulas) == 0 {
		return out
	}
	for _, it := range b.Items {
		row := make(map[string]Result, len(formulas))
		for _, c := range formulas {
			row[c.ID] = Evaluate(c.Config.Formula, b.Columns, it.Values)
		}
		out[it.ID] = row
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func unary(fn func(float64) float64) func(params ...any) (any, error) {
	return func(params ...any) (any, error) {
		if len(params) != 1 {
			return nil, fmt.Errorf("expected 1 argument, got %d", len(params))
		}
		x, ok := toFloat(params[0])
		if !ok {
			return nil, fmt.Errorf("argument is not a number")
		}
		return fn(x), nil
	}
}

func binary(fn func(float64, float64) float64) func(params ...any) (any, error) {
	return func(params ...any) (any, error) {
		if len(params) != 2 {
			return nil, fmt.Errorf("expected 2 arguments, got %d", len(params))
		}
		x, ok := toFloat(params[0])
		if !ok {
			return nil, fmt.Errorf("first argument is not a number")
		}
		y, ok := toFloat(params[1])
		if !ok {
			return nil, fmt.Errorf("second argument is not a number")
		}
		return fn(x, y), nil
	}
}
