package textrole

import (
	"strings"
	"testing"
)

var testPrefixes = Prefixes{Query: "Q: ", Passage: "P: "}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		inputs []string
		want   Role
	}{
		{"single short string", []string{"find a bfs implementation"}, Query},
		{"single string with one newline", []string{"sort\nslice"}, Query},
		{"single string with two newlines", []string{"a\nb\nc"}, Passage},
		{"single string at length limit", []string{strings.Repeat("x", QueryMaxChars)}, Passage},
		{"single string below length limit", []string{strings.Repeat("x", QueryMaxChars-1)}, Query},
		{"multi-byte runes counted as chars", []string{strings.Repeat("é", QueryMaxChars-1)}, Query},
		{"two short strings", []string{"a", "b"}, Passage},
		{"empty batch", nil, Passage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.inputs); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApply_Query(t *testing.T) {
	in := []string{"find a bfs implementation"}
	role, out := Apply(in, testPrefixes)

	if role != Query {
		t.Fatalf("role = %v, want query", role)
	}
	if out[0] != "Q: find a bfs implementation" {
		t.Errorf("out[0] = %q", out[0])
	}
	if in[0] != "find a bfs implementation" {
		t.Errorf("input was modified: %q", in[0])
	}
}

func TestApply_Passages(t *testing.T) {
	long := strings.Repeat("code ", 100)
	tests := []struct {
		name   string
		inputs []string
	}{
		{"multiple strings", []string{"func a() {}", "func b() {}"}},
		{"single long string", []string{long}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role, out := Apply(tt.inputs, testPrefixes)
			if role != Passage {
				t.Fatalf("role = %v, want passage", role)
			}
			if len(out) != len(tt.inputs) {
				t.Fatalf("len(out) = %d, want %d", len(out), len(tt.inputs))
			}
			for i, s := range out {
				if s != "P: "+tt.inputs[i] {
					t.Errorf("out[%d] = %q", i, s)
				}
			}
		})
	}
}

func TestRoleString(t *testing.T) {
	if Query.String() != "query" || Passage.String() != "passage" {
		t.Errorf("String() = %q, %q", Query.String(), Passage.String())
	}
}
