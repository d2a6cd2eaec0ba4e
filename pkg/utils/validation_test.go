package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidation(t *testing.T) {
	assert.True(t, ValidateEmail("jane.doe+bank@example.co"))
	assert.False(t, ValidateEmail("jane.doe@"))
	assert.False(t, ValidateEmail("  "))

	assert.True(t, ValidateMobile("0712345678"))
	assert.False(t, ValidateMobile("071234567"))
	assert.False(t, ValidateMobile("07123456a8"))

	assert.True(t, ValidateNationalID("123456789012"))
	assert.False(t, ValidateNationalID("12345678901"))

	assert.True(t, ValidatePassword("secret"))
	assert.False(t, ValidatePassword("short"))

	assert.True(t, ValidatePin("0042"))
	assert.False(t, ValidatePin("42"))
}
