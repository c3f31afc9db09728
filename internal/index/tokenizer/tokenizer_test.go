package tokenizer

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "lowercases and splits on punctuation",
			input: "Solve: x^2 - 5x + 6 = 0",
			want:  []string{"solve", "5x"},
		},
		{
			name:  "drops stop words",
			input: "What is the derivative of a function",
			want:  []string{"derivative", "function"},
		},
		{
			name:  "drops single characters",
			input: "a b c quadratic",
			want:  []string{"quadratic"},
		},
		{
			name:  "keeps digits",
			input: "chapter 12 covers ww2 history",
			want:  []string{"chapter", "12", "covers", "ww2", "history"},
		},
		{
			name:  "unicode letters survive",
			input: "Глагол движения",
			want:  []string{"глагол", "движения"},
		},
		{
			name:  "empty input",
			input: "",
			want:  []string{},
		},
		{
			name:  "only stop words",
			input: "what is the",
			want:  []string{},
		},
		{
			name:  "duplicates preserved",
			input: "equation equation equation",
			want:  []string{"equation", "equation", "equation"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokenize(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestTokenSet(t *testing.T) {
	set := TokenSet("equation equation quadratic")
	if len(set) != 2 {
		t.Fatalf("want 2 distinct tokens, got %d", len(set))
	}
	for _, tok := range []string{"equation", "quadratic"} {
		if _, ok := set[tok]; !ok {
			t.Errorf("missing token %q", tok)
		}
	}
}

func BenchmarkTokenize(b *testing.B) {
	text := "The quadratic formula x equals negative b plus or minus the square root of b squared minus 4ac, all over 2a"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Tokenize(text)
	}
}
