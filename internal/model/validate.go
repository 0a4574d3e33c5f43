package model

import (
	"github.com/go-playground/validator/v10"

	"github.com/roach88/fieldsync/internal/fault"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports a fault.KindValidation error when either coordinate is
// out of range.
func (l Location) Validate() error {
	if err := validate.Struct(l); err != nil {
		return fault.New(fault.KindValidation, "model.location", err)
	}
	return nil
}
