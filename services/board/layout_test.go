package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLayoutIsValid(t *testing.T) {
	require.NoError(t, DefaultLayout().Validate())
}

func TestValidateRejectsSharedPin(t *testing.T) {
	l := DefaultLayout()
	l.EncoderB = l.Buttons[1]
	err := l.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GP3")
}

func TestValidateRejectsRange(t *testing.T) {
	l := DefaultLayout()
	l.LEDData = 29
	assert.ErrorContains(t, l.Validate(), "led_data")

	l = DefaultLayout()
	l.UART = 2
	assert.ErrorContains(t, l.Validate(), "UART2")
}
