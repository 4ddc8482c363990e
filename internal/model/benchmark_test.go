package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierFor(t *testing.T) {
	tests := []struct {
		observations int
		want         ConfidenceTier
	}{
		{0, ConfidenceNone},
		{1, ConfidenceNone},
		{2, ConfidenceNone},
		{3, ConfidenceMedium},
		{4, ConfidenceMedium},
		{5, ConfidenceHigh},
		{12, ConfidenceHigh},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, TierFor(tt.observations), "observations=%d", tt.observations)
	}
}
