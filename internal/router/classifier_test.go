package router

import "testing"

func TestClassify(t *testing.T) {
	c := newClassifier([]Bucket{
		{Name: "quantitative", Keywords: []string{"equation", "integral", "derivative"}, Providers: []string{"symbolic"}},
		{Name: "linguistic", Keywords: []string{"translate", "grammar", "conjugat"}, Providers: []string{"language"}},
	})

	tests := []struct {
		prompt     string
		wantBucket string
	}{
		{"solve this EQUATION for x", "quantitative"},
		{"how do I conjugate this verb", "linguistic"},
		{"translate this equation", "quantitative"}, // first bucket wins
		{"tell me about the roman empire", ""},
		{"", ""},
	}

	for _, tt := range tests {
		bucket, _ := c.classify(tt.prompt)
		if bucket != tt.wantBucket {
			t.Errorf("classify(%q) = %q, want %q", tt.prompt, bucket, tt.wantBucket)
		}
	}
}

func TestClassifyNoBuckets(t *testing.T) {
	c := newClassifier(nil)
	if bucket, order := c.classify("anything"); bucket != "" || order != nil {
		t.Errorf("empty classifier matched: %q %v", bucket, order)
	}
}
