// Package args implements the flat command-line tokenizer shared by every
// skill: positional arguments plus "--name [value]" options. A bare "--"
// ends option scanning; every later token is positional.
package args

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Prefix marks a token as an option name.
const Prefix = "--"

// Args is the result of tokenizing a command line.
type Args struct {
	// Positional holds every token that is neither an option nor an option
	// value, in original order.
	Positional []string

	values map[string][]string
	flags  map[string]bool
}

// Error reports malformed or missing user input. The CLI shell renders it as
// a usage error.
type Error struct {
	Msg string
}

func (e *Error) Error() string {
	return e.Msg
}

// Parse tokenizes tokens left to right. Option names listed in repeatable
// accumulate their values; any other option keeps its last value. Unknown
// options are recorded like known ones.
func Parse(tokens []string, repeatable ...string) *Args {
	a := &Args{
		values: make(map[string][]string),
		flags:  make(map[string]bool),
	}

	multi := make(map[string]bool, len(repeatable))
	for _, name := range repeatable {
		multi[name] = true
	}

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		if tok == Prefix {
			a.Positional = append(a.Positional, tokens[i+1:]...)
			break
		}

		if !strings.HasPrefix(tok, Prefix) {
			a.Positional = append(a.Positional, tok)
			continue
		}

		name := strings.TrimPrefix(tok, Prefix)
		if i+1 < len(tokens) && !strings.HasPrefix(tokens[i+1], Prefix) {
			i++
			if multi[name] {
				a.values[name] = append(a.values[name], tokens[i])
			} else {
				a.values[name] = []string{tokens[i]}
			}
			delete(a.flags, name)
			continue
		}

		a.flags[name] = true
		if !multi[name] {
			delete(a.values, name)
		}
	}

	return a
}

// Has reports whether the option appeared at all, as a flag or with a value.
func (a *Args) Has(name string) bool {
	_, ok := a.values[name]
	return ok || a.flags[name]
}

// Bool reports whether the option appeared. A value of "false", "0" or "no"
// counts as false.
func (a *Args) Bool(name string) bool {
	if a.flags[name] {
		return true
	}
	v, ok := a.last(name)
	if !ok {
		return false
	}
	switch strings.ToLower(v) {
	case "false", "0", "no":
		return false
	}
	return true
}

// String returns the option's value. It returns false when the option was
// absent or given without a value.
func (a *Args) String(name string) (string, bool) {
	return a.last(name)
}

// StringOr returns the option's value, or def when it has none.
func (a *Args) StringOr(name, def string) string {
	if v, ok := a.last(name); ok {
		return v
	}
	return def
}

// Values returns every value given for a repeatable option, in order.
func (a *Args) Values(name string) []string {
	vals := a.values[name]
	out := make([]string, len(vals))
	copy(out, vals)
	return out
}

// Int parses the option's value as an integer, returning def when absent.
func (a *Args) Int(name string, def int) (int, error) {
	v, ok := a.last(name)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &Error{Msg: fmt.Sprintf("--%s must be an integer, got %q", name, v)}
	}
	return n, nil
}

// Duration parses the option's value as a time.Duration. A bare integer is
// read as seconds.
func (a *Args) Duration(name string, def time.Duration) (time.Duration, error) {
	v, ok := a.last(name)
	if !ok {
		return def, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, &Error{Msg: fmt.Sprintf("--%s must be a duration, got %q", name, v)}
	}
	return d, nil
}

// Arg returns the i-th positional argument, or "" when there are fewer.
func (a *Args) Arg(i int) string {
	if i < 0 || i >= len(a.Positional) {
		return ""
	}
	return a.Positional[i]
}

// Require fails with an *Error naming the first option that has no value.
func (a *Args) Require(names ...string) error {
	for _, name := range names {
		if _, ok := a.last(name); !ok {
			return &Error{Msg: fmt.Sprintf("--%s is required", name)}
		}
	}
	return nil
}

// RequireArgs fails with an *Error naming the first missing positional
// argument.
func (a *Args) RequireArgs(names ...string) error {
	for i, name := range names {
		if i >= len(a.Positional) || a.Positional[i] == "" {
			return &Error{Msg: fmt.Sprintf("missing argument <%s>", name)}
		}
	}
	return nil
}

func (a *Args) last(name string) (string, bool) {
	vals := a.values[name]
	if len(vals) == 0 {
		return "", false
	}
	return vals[len(vals)-1], true
}
