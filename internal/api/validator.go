package api

import (
	"fmt"

	app_errors "github.com/yusuftnc/qchat/internal/errors"
	"github.com/yusuftnc/qchat/internal/validation"
)

// validateRequest checks a request body against its `validate` tags and
// returns a wrapped ErrValidation naming every failed field.
func validateRequest(payload interface{}) error {
	if err := validation.Struct(payload); err != nil {
		return fmt.Errorf("%w: %s", app_errors.ErrValidation, err.Error())
	}
	return nil
}
