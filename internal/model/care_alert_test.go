package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlertStatusCanTransitionTo(t *testing.T) {
	cases := []struct {
		from, to AlertStatus
		want     bool
	}{
		{AlertStatusActive, AlertStatusAcknowledged, true},
		{AlertStatusActive, AlertStatusResolved, true},
		{AlertStatusAcknowledged, AlertStatusResolved, true},
		{AlertStatusAcknowledged, AlertStatusActive, false},
		{AlertStatusResolved, AlertStatusActive, false},
		{AlertStatusResolved, AlertStatusAcknowledged, false},
		{AlertStatusActive, AlertStatusActive, false},
		{AlertStatusResolved, AlertStatusResolved, false},
		{AlertStatus("bogus"), AlertStatusResolved, false},
		{AlertStatusActive, AlertStatus("bogus"), false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.from.CanTransitionTo(tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}
