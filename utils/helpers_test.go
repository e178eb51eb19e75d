package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"PharmacyScanner/internal/models"
)

func TestCreateSlug(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"Paralen 500mg (tbl.)", "paralen-500mg-tbl"},
		{"  Ibalgin   400 ", "ibalgin-400"},
		{"Nurofen -- Express!!", "nurofen-express"},
		{"Acylpyrín", "acylpyrín"},
		{"", UnknownSlug},
		{"()--", UnknownSlug},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.expected, CreateSlug(tc.input))
		})
	}
}

func TestUniqueStrings(t *testing.T) {
	assert.Equal(t, []string{"b", "a", "c"}, UniqueStrings([]string{"b", "a", "b", "c", "a"}))
	assert.Empty(t, UniqueStrings(nil))
}

func TestClassifyAvailability(t *testing.T) {
	testCases := []struct {
		input    string
		expected models.Status
	}{
		{"Skladom", models.StatusOK},
		{"Na sklade", models.StatusOK},
		{"áno", models.StatusOK},
		{">0", models.StatusOK},
		{"SKLADOM > 5 ks", models.StatusOK},
		{"In stock", models.StatusOK},
		{"0 ks", models.StatusNotFound},
		{"Vypredané", models.StatusNotFound},
		{"", models.StatusNotFound},
		{"   ", models.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.expected, ClassifyAvailability(tc.input))
		})
	}
}
