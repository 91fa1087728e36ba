// Package textrole decides whether embedding input is a search query or a set
// of passages and applies the matching instruction prefix.
//
// The decision is made for the whole input, not per string: a single short
// string is assumed to be a query, anything else is treated as passages. The
// thresholds are compatibility policy for the embedding model's task prefixes,
// not a general classifier.
package textrole

import (
	"strings"
	"unicode/utf8"
)

// Role is the embedding role of an input batch.
type Role int

const (
	Passage Role = iota
	Query
)

func (r Role) String() string {
	if r == Query {
		return "query"
	}
	return "passage"
}

const (
	// QueryMaxChars is the exclusive upper bound on query length in runes.
	QueryMaxChars = 256
	// QueryMaxNewlines is the exclusive upper bound on newlines in a query.
	QueryMaxNewlines = 2
)

// Prefixes holds the instruction prefix for each role.
type Prefixes struct {
	Query   string
	Passage string
}

// Classify returns the role of inputs.
func Classify(inputs []string) Role {
	if len(inputs) != 1 {
		return Passage
	}
	s := inputs[0]
	if utf8.RuneCountInString(s) >= QueryMaxChars {
		return Passage
	}
	if strings.Count(s, "\n") >= QueryMaxNewlines {
		return Passage
	}
	return Query
}

// Apply classifies inputs and returns a prefixed copy. inputs is not modified.
func Apply(inputs []string, p Prefixes) (Role, []string) {
	role := Classify(inputs)
	prefix := p.Passage
	if role == Query {
		prefix = p.Query
	}
	out := make([]string, len(inputs))
	for i, s := range inputs {
		out[i] = prefix + s
	}
	return role, out
}
