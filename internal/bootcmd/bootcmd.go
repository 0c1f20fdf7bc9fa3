// Package bootcmd reads a kernel command line the way the kernel splits it:
// whitespace separated words, double quotes grouping words that contain
// spaces, and "--" handing the rest of the line to init.
package bootcmd

import "strings"

// Param is one kernel parameter. Bare words have no value.
type Param struct {
	Name     string
	Value    string
	HasValue bool
}

func (p Param) String() string {
	if !p.HasValue {
		return quote(p.Name)
	}
	return p.Name + "=" + quote(p.Value)
}

func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n") {
		return `"` + s + `"`
	}
	return s
}

// Line is a parsed command line.
type Line struct {
	params []Param
	init   []string
}

// Parse splits s into kernel parameters and init arguments.
func Parse(s string) Line {
	var l Line
	words := split(s)
	for i, w := range words {
		if w.text == "--" && !w.quoted {
			l.init = append(l.init, texts(words[i+1:])...)
			break
		}
		name, value, ok := strings.Cut(w.text, "=")
		l.params = append(l.params, Param{Name: name, Value: value, HasValue: ok})
	}
	return l
}

type word struct {
	text   string
	quoted bool
}

func texts(ws []word) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.text
	}
	return out
}

// split breaks s at unquoted whitespace and drops the quote characters.
func split(s string) []word {
	var (
		out     []word
		cur     strings.Builder
		inQuote bool
		quoted  bool
		started bool
	)
	flush := func() {
		if started {
			out = append(out, word{text: cur.String(), quoted: quoted})
		}
		cur.Reset()
		started, quoted = false, false
	}
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			started, quoted = true, true
		case !inQuote && (r == ' ' || r == '\t' || r == '\n' || r == '\r'):
			flush()
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	flush()
	return out
}

// HasOption reports whether name appears as a bare word. "forcepae=1" does
// not count as the boolean option forcepae.
func (l Line) HasOption(name string) bool {
	for _, p := range l.params {
		if !p.HasValue && p.Name == name {
			return true
		}
	}
	return false
}

// Value returns the value of the last name=value parameter called name.
func (l Line) Value(name string) (string, bool) {
	for i := len(l.params) - 1; i >= 0; i-- {
		if p := l.params[i]; p.HasValue && p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// Params returns the kernel parameters in order.
func (l Line) Params() []Param { return append([]Param(nil), l.params...) }

// Init returns the arguments after "--".
func (l Line) Init() []string { return append([]string(nil), l.init...) }

func (l Line) String() string {
	parts := make([]string, 0, len(l.params)+len(l.init)+1)
	for _, p := range l.params {
		parts = append(parts, p.String())
	}
	if len(l.init) > 0 {
		parts = append(parts, "--")
		for _, a := range l.init {
			parts = append(parts, quote(a))
		}
	}
	return strings.Join(parts, " ")
}
