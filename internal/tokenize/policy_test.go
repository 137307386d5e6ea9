package tokenize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyPolicy(t *testing.T) {
	tests := []struct {
		name   string
		cfg    PolicyConfig
		input  []string
		expect []string
	}{
		{
			name:   "english stopwords only when lowercase latin",
			cfg:    DefaultPolicyConfig(),
			input:  []string{"the", "library", "and", "The"},
			expect: []string{"library", "The"},
		},
		{
			name:   "cjk stopwords",
			cfg:    DefaultPolicyConfig(),
			input:  []string{"我们", "图书馆", "因为"},
			expect: []string{"图书馆"},
		},
		{
			name:   "noise bigram needs both characters",
			cfg:    DefaultPolicyConfig(),
			input:  []string{"的是", "图书", "的书", "是的", "的"},
			expect: []string{"图书", "的书", "的"},
		},
		{
			name:   "numbers dropped unless kept",
			cfg:    PolicyConfig{KeepNumbers: false},
			input:  []string{"2026", "v2", "图"},
			expect: []string{"v2", "图"},
		},
		{
			name:   "everything off keeps all",
			cfg:    PolicyConfig{KeepNumbers: true},
			input:  []string{"the", "的是", "42"},
			expect: []string{"the", "的是", "42"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, ApplyPolicy(tt.input, tt.cfg))
		})
	}
}

func TestApplyPolicy_PreservesTermPositions(t *testing.T) {
	// Given: positioned terms with a stopword in the middle
	terms := []Term{{"search", 0}, {"the", 1}, {"index", 2}}

	// When: filtering
	out := ApplyPolicy(terms, DefaultPolicyConfig())

	// Then: survivors keep their original positions
	assert.Equal(t, []Term{{"search", 0}, {"index", 2}}, out)
}
