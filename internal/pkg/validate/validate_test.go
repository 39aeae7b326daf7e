package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type sample struct {
	Email string `validate:"required,email"`
	Code  string `validate:"required,len=6,numeric"`
}

func TestStruct_Valid(t *testing.T) {
	assert.NoError(t, Struct(sample{Email: "a@x.com", Code: "123456"}))
}

func TestStruct_ReportsEveryField(t *testing.T) {
	err := Struct(sample{Email: "nope", Code: "12ab"})
	assert.ErrorContains(t, err, "field 'Email' failed 'email'")
	assert.ErrorContains(t, err, "field 'Code' failed 'len'")
}

func TestVar(t *testing.T) {
	assert.NoError(t, Var("+14155550123", "e164"))
	assert.Error(t, Var("555-0123", "e164"))
}

type tagged struct {
	Username string `json:"username" validate:"required,min=3"`
}

func TestStruct_UsesJSONNames(t *testing.T) {
	err := Struct(tagged{Username: "ab"})
	assert.ErrorContains(t, err, "field 'username' failed 'min'")
}
