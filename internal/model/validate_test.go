package model

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/fieldsync/internal/fault"
)

func TestLocation_Validate(t *testing.T) {
	tests := []struct {
		name string
		loc  Location
		ok   bool
	}{
		{"jakarta", Location{Latitude: -6.2, Longitude: 106.8}, true},
		{"origin", Location{}, true},
		{"poles_and_antimeridian", Location{Latitude: -90, Longitude: 180}, true},
		{"latitude_high", Location{Latitude: 95, Longitude: 106.8}, false},
		{"latitude_low", Location{Latitude: -90.5}, false},
		{"longitude_high", Location{Latitude: -6.2, Longitude: 180.1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.loc.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, fault.Is(err, fault.KindValidation), "%v", err)
		})
	}
}
