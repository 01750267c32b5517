package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email   string
		wantErr bool
	}{
		{"buyer@plant.example", false},
		{"a.b+c@stores.plant.example", false},
		{"system", true},
		{"buyer@plant", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateCode(t *testing.T) {
	assert.NoError(t, ValidateCode("BRG-6204"))
	assert.NoError(t, ValidateCode("V100"))
	assert.Error(t, ValidateCode(""))
	assert.Error(t, ValidateCode("-lead"))
	assert.Error(t, ValidateCode("has space"))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "cracked\nhousing", SanitizeString("  crack\x00ed\nhousing\x7f "))
}
