package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type refundRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Reason string `json:"reason" validate:"required,oneof=discount return swap claim other"`
	Note   string `json:"note" validate:"omitempty,min=3"`
}

func TestValidate_Valid(t *testing.T) {
	err := Validate(refundRequest{Amount: 500, Reason: "return"})
	assert.NoError(t, err)
}

func TestValidate_MissingRequired(t *testing.T) {
	err := Validate(refundRequest{})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)

	fields := valErr.Fields()
	assert.Contains(t, fields, "Amount")
	assert.Contains(t, fields, "Reason")
	assert.Equal(t, "is required", fields["Amount"])
}

func TestValidate_OneOf(t *testing.T) {
	err := Validate(refundRequest{Amount: 500, Reason: "because"})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Fields()["Reason"], "must be one of")
}

func TestValidate_MinOnOptionalField(t *testing.T) {
	err := Validate(refundRequest{Amount: 500, Reason: "other", Note: "ab"})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Fields()["Note"], "at least 3")
}

func TestValidationError_ErrorString(t *testing.T) {
	err := Validate(refundRequest{Amount: -1, Reason: "return"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Amount")
}
