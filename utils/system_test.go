package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetOptimalWorkerCount(t *testing.T) {
	assert.Equal(t, 1, GetOptimalWorkerCount("", 5, nil), "empty means sequential")
	assert.Equal(t, 3, GetOptimalWorkerCount("3", 5, nil))
	assert.Equal(t, 2, GetOptimalWorkerCount("8", 2, nil), "capped by site count")

	auto := GetOptimalWorkerCount("auto", 100, nil)
	assert.GreaterOrEqual(t, auto, 1)
	assert.LessOrEqual(t, auto, 16)

	invalid := GetOptimalWorkerCount("lots", 100, nil)
	assert.GreaterOrEqual(t, invalid, 1)
}
