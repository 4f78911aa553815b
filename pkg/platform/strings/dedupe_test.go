package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
		{
			name:     "empty slice",
			input:    []string{},
			expected: []string{},
		},
		{
			name:     "single role",
			input:    []string{"auditor"},
			expected: []string{"auditor"},
		},
		{
			name:     "trims whitespace",
			input:    []string{"  auditor  ", "compliance-officer  ", "  admin"},
			expected: []string{"auditor", "compliance-officer", "admin"},
		},
		{
			name:     "drops repeated assignments preserving order",
			input:    []string{"auditor", "admin", "auditor", "viewer", "admin"},
			expected: []string{"auditor", "admin", "viewer"},
		},
		{
			name:     "drops empty names",
			input:    []string{"auditor", "", "  ", "admin"},
			expected: []string{"auditor", "admin"},
		},
		{
			name:     "trim, dedupe, and drop empties together",
			input:    []string{"  auditor ", "admin", "auditor", "", "  ", "admin"},
			expected: []string{"auditor", "admin"},
		},
		{
			name:     "case-sensitive: differently cased names survive",
			input:    []string{"Auditor", "auditor", "AUDITOR"},
			expected: []string{"Auditor", "auditor", "AUDITOR"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DedupeAndTrim(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}
