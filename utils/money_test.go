package utils

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$1,247.00", FormatMoney(decimal.RequireFromString("1247"), "USD"))
	assert.Equal(t, "$0.05", FormatMoney(decimal.RequireFromString("0.051"), "CAD"))
}
