package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTime(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		expected string
	}{
		{"compact", "0730", "07:30"},
		{"short clock", "7:30", "07:30"},
		{"already normalized", "07:30", "07:30"},
		{"evening meridiem", "7:30 PM", "19:30"},
		{"morning meridiem", "7:30 AM", "07:30"},
		{"noon", "12:00 PM", "12:00"},
		{"midnight", "12:00 AM", "00:00"},
		{"meridiem with seconds", "7:30:00 PM", "19:30"},
		{"lowercase meridiem", "7:30 pm", "19:30"},
		{"compact afternoon", "1545", "15:45"},
		{"surrounding whitespace", " 0730 ", "07:30"},
		{"free text passes through", "after lunch", "after lunch"},
		{"empty", "", ""},
		{"out of range compact", "2795", "2795"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, NormalizeTime(tc.input))
		})
	}
}

func TestParseBool(t *testing.T) {
	for _, truthy := range []string{"TRUE", "true", "✓", "X", "x", "✔", " TRUE "} {
		assert.True(t, ParseBool(truthy), "expected %q to parse true", truthy)
	}
	for _, falsy := range []string{"FALSE", "", "anything else", "0", "✗", "yes"} {
		assert.False(t, ParseBool(falsy), "expected %q to parse false", falsy)
	}
}
