// Package condition evaluates stage/step conditions and continue_on_error
// expressions, and performs ${{ }} variable interpolation.
package condition

import (
	"regexp"
	"strings"
)

// interpolationPattern drives replacement of every ${{ ... }} span.
var interpolationPattern = regexp.MustCompile(`\$\{\{\s*([^}]+)\s*\}\}`)

// Scope is the lookup context available to ${{ }} expressions and to
// evaluated conditions: env.X, matrix.k, steps.<name>.outputs.<key>, or a
// bare pipeline/stage variable name.
type Scope struct {
	Env       map[string]string
	Matrix    map[string]string
	Variables map[string]string
	Steps     map[string]StepOutputs
	// SelfStep, when set, is the name of the step currently being
	// evaluated; a self-reference to its own outputs resolves to the
	// empty string.
	SelfStep string
}

// StepOutputs holds one step's declared output values.
type StepOutputs struct {
	Outputs map[string]string
}

// Interpolate replaces every ${{ expr }} span in s with its resolved
// value. Missing lookups resolve to the empty string.
func Interpolate(s string, scope Scope) string {
	return interpolationPattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := interpolationPattern.FindStringSubmatch(match)
		if len(sub) != 2 {
			return ""
		}
		return scope.Lookup(strings.TrimSpace(sub[1]))
	})
}

// Lookup resolves one dotted reference against the scope, following
// precedence: env. > matrix. > steps.<n>.outputs. > bare variable name.
func (s Scope) Lookup(ref string) string {
	switch {
	case strings.HasPrefix(ref, "env."):
		return s.Env[strings.TrimPrefix(ref, "env.")]
	case strings.HasPrefix(ref, "matrix."):
		return s.Matrix[strings.TrimPrefix(ref, "matrix.")]
	case strings.HasPrefix(ref, "steps."):
		return s.lookupStepOutput(strings.TrimPrefix(ref, "steps."))
	default:
		return s.Variables[ref]
	}
}

func (s Scope) lookupStepOutput(rest string) string {
	// rest is "<name>.outputs.<key>"
	parts := strings.SplitN(rest, ".", 3)
	if len(parts) != 3 || parts[1] != "outputs" {
		return ""
	}
	stepName, key := parts[0], parts[2]
	if stepName == s.SelfStep {
		return ""
	}
	step, ok := s.Steps[stepName]
	if !ok {
		return ""
	}
	return step.Outputs[key]
}
