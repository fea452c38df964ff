package condition

import (
	"strings"

	"github.com/codeready-toolchain/orcaci/internal/domain"
	"github.com/expr-lang/expr"
)

// Env is the expression evaluation environment exposed to expr-lang:
// boolean literals, ==, !=, and contains, operating on strings already
// resolved by Interpolate.
type Env struct {
	// Contains mirrors a "contains" binary operator as a callable,
	// since expr-lang has no built-in string-contains infix operator.
	Contains func(haystack, needle string) bool
}

func newEnv() Env {
	return Env{Contains: strings.Contains}
}

// Evaluate runs expression after interpolating ${{ }} references against
// scope, and reports its boolean result. Unrecognized or unparsable
// expressions evaluate to false, the safe default.
func Evaluate(expression string, scope Scope) bool {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return true
	}
	interpolated := interpolateQuoted(expression, scope)
	program, err := expr.Compile(rewriteContains(interpolated), expr.Env(newEnv()), expr.AsBool())
	if err != nil {
		return false
	}
	out, err := expr.Run(program, newEnv())
	if err != nil {
		return false
	}
	b, ok := out.(bool)
	return ok && b
}

// EvaluateCondition evaluates a stage/step Condition, honoring the
// {if, unless} form as well as a plain expression string.
func EvaluateCondition(c *domain.Condition, scope Scope) bool {
	if c == nil {
		return true
	}
	if c.HasIfUnless() {
		if c.If != "" && !Evaluate(c.If, scope) {
			return false
		}
		if c.Unless != "" && Evaluate(c.Unless, scope) {
			return false
		}
		return true
	}
	return Evaluate(c.Expression, scope)
}

// EvaluateContinueOnError resolves a ContinueOnError field: a boolean is used
// directly, an expression is evaluated against scope.
func EvaluateContinueOnError(c *domain.ContinueOnError, scope Scope) bool {
	if c == nil {
		return false
	}
	if c.Bool != nil {
		return *c.Bool
	}
	return Evaluate(c.Expression, scope)
}

// interpolateQuoted behaves like Interpolate but renders each resolved
// value as a quoted expr string literal, so the surrounding expression
// (e.g. ${{ env.BRANCH }} == "main") stays syntactically valid once
// substituted, rather than splicing a bare identifier into the source.
func interpolateQuoted(s string, scope Scope) string {
	return interpolationPattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := interpolationPattern.FindStringSubmatch(match)
		if len(sub) != 2 {
			return `""`
		}
		return quoteExprString(scope.Lookup(strings.TrimSpace(sub[1])))
	})
}

func quoteExprString(v string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range v {
		switch r {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// rewriteContains rewrites the spec's infix-looking "a contains b" into
// a Contains(a, b) call expr-lang can evaluate, since "contains" is not
// one of expr-lang's built-in operators.
func rewriteContains(s string) string {
	const sep = " contains "
	idx := strings.Index(s, sep)
	if idx < 0 {
		return s
	}
	lhs := strings.TrimSpace(s[:idx])
	rhs := strings.TrimSpace(s[idx+len(sep):])
	return "Contains(" + lhs + ", " + rhs + ")"
}
