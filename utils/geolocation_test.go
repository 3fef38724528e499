package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateDistance(t *testing.T) {
	// New York to Los Angeles, roughly 3940 km.
	distance := CalculateDistance(40.7128, -74.0060, 34.0522, -118.2437)
	assert.InDelta(t, 3940000, distance, 50000)

	assert.Zero(t, CalculateDistance(40.7128, -74.0060, 40.7128, -74.0060))
}

func TestIsValidCoordinate(t *testing.T) {
	assert.True(t, IsValidCoordinate(0, 0))
	assert.True(t, IsValidCoordinate(-90, 180))
	assert.False(t, IsValidCoordinate(90.1, 0))
	assert.False(t, IsValidCoordinate(0, -180.5))
}
