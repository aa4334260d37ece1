package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farewatch/internal/types"
)

type validatedDTO struct {
	Origin string `validate:"required,iata"`
	Cabin  string `validate:"omitempty,cabin_class"`
	Trip   string `validate:"omitempty,trip_type"`
	Date   string `validate:"omitempty,date_string"`
}

func TestValidateStruct(t *testing.T) {
	v, err := NewValidator(nil)
	require.NoError(t, err)

	tests := []struct {
		name string
		dto  validatedDTO
		ok   bool
	}{
		{"valid uppercase", validatedDTO{Origin: "JFK"}, true},
		{"valid lowercase", validatedDTO{Origin: "lax"}, true},
		{"all custom tags", validatedDTO{Origin: "JFK", Cabin: "business", Trip: "oneway", Date: "2025-12-01"}, true},
		{"origin too long", validatedDTO{Origin: "NEWYORK"}, false},
		{"origin with digits", validatedDTO{Origin: "J4K"}, false},
		{"unknown cabin", validatedDTO{Origin: "JFK", Cabin: "steerage"}, false},
		{"unknown trip type", validatedDTO{Origin: "JFK", Trip: "multi_city"}, false},
		{"bad date format", validatedDTO{Origin: "JFK", Date: "12/01/2025"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateStruct(tt.dto)
			if tt.ok {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			var appErr *types.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, types.ErrCodeValidationMissingField, appErr.Code)
			assert.NotEmpty(t, appErr.Details, "field errors carry per-field details")
		})
	}
}
