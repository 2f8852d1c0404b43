package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type sample struct {
	Model    string   `validate:"required"`
	Messages []string `validate:"min=1"`
}

func TestStruct(t *testing.T) {
	assert.NoError(t, Struct(sample{Model: "m", Messages: []string{"hi"}}))

	err := Struct(sample{})
	assert.EqualError(t, err, "Field 'Model' failed on the 'required' tag; Field 'Messages' failed on the 'min' tag")
}

func TestStruct_NonStructInput(t *testing.T) {
	err := Struct("not a struct")
	assert.ErrorContains(t, err, "unexpected error occurred during validation")
}
