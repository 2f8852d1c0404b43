// Package validation holds the shared validator used for gateway request
// bodies and for backend response envelopes.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	// validate holds the single instance of the validator.
	validate *validator.Validate
	// once ensures that the validator is initialized only one time.
	once sync.Once
)

func getInstance() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Struct checks payload against the rules in its `validate` tags and returns
// one readable error listing every failed field, or nil. The error carries no
// sentinel: callers decide whether a failure is bad input or a contract
// violation and wrap accordingly.
func Struct(payload interface{}) error {
	err := getInstance().Struct(payload)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("an unexpected error occurred during validation: %s", err.Error())
	}

	var errorMessages []string
	for _, fieldErr := range validationErrors {
		// Example output: "Field 'Messages' failed on the 'min' tag"
		errorMessages = append(errorMessages, fmt.Sprintf("Field '%s' failed on the '%s' tag", fieldErr.Field(), fieldErr.Tag()))
	}
	return errors.New(strings.Join(errorMessages, "; "))
}
