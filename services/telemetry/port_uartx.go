//go:build rp2040 || rp2350

package telemetry

import (
	"machine"

	"github.com/jangala-dev/tinygo-uartx/uartx"
)

// OpenUART configures one of the board UARTs for the host link. id is 0 or
// 1; anything else selects UART1.
func OpenUART(id int, tx, rx machine.Pin, baud uint32) (*uartx.UART, error) {
	hw := uartx.UART1
	if id == 0 {
		hw = uartx.UART0
	}
	if baud == 0 {
		baud = DefaultBaud
	}
	if err := hw.Configure(uartx.UARTConfig{BaudRate: baud, TX: tx, RX: rx}); err != nil {
		return nil, err
	}
	if err := hw.SetFormat(8, 1, uartx.ParityNone); err != nil {
		return nil, err
	}
	return hw, nil
}
