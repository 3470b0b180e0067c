package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no special characters",
			input:    "Hello World",
			expected: "Hello World",
		},
		{
			name:     "backslash must be escaped first",
			input:    "Path\\to\\file",
			expected: "Path\\\\to\\\\file",
		},
		{
			name:     "all special characters",
			input:    "_*[]()~`>#+-=|{}.!",
			expected: "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!",
		},
		{
			name:     "quarter label and citation marker",
			input:    "Q1-2024 revenue [P1]",
			expected: "Q1\\-2024 revenue \\[P1\\]",
		},
		{
			name:     "valuation with special chars",
			input:    "$2,300,000,000,000 (52.3 x)",
			expected: "$2,300,000,000,000 \\(52\\.3 x\\)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EscapeMarkdownV2(tt.input))
		})
	}
}

func TestSafeTextV2(t *testing.T) {
	assert.Equal(t, "Data Center revenue \\+12%", SafeTextV2("Data Center revenue +12%"))
	assert.Equal(t, "Error message", SafeTextV2("Error\xff message"))
}
