package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected float64
	}{
		{"Euro with comma", "12,50 €", 12.50},
		{"Bare comma decimal", "3,99", 3.99},
		{"Dot decimal", "AED 350.75", 350.75},
		{"Thousands and comma decimal", "1.234,50 Kč", 1234.50},
		{"Trailing abbreviation dot", "3,99 €/ks.", 3.99},
		{"Integer", "Cena 99", 99.0},
		{"Leading dot", ".50 €", 0.50},
		{"Leading comma", ",99 €", 0.99},
		{"Zero before comma", "0,50 €", 0.50},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := ParsePrice(tc.input)
			require.NotNil(t, result, "ParsePrice(%q)", tc.input)
			assert.InDelta(t, tc.expected, *result, 1e-9)
		})
	}
}

func TestParsePrice_Unparsable(t *testing.T) {
	for _, input := range []string{"N/A", "", "cena na vyžiadanie", "..."} {
		assert.Nil(t, ParsePrice(input), "ParsePrice(%q)", input)
	}
}
