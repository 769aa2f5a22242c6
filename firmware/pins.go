//go:build tinygo

package main

import "machine"

const (
	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // ADC resolution in bits (12-bit = 0-4095)

	// Scan timing advertised in the INFO reply
	MIN_PERIOD_NS = 100000 // Fastest scan period, 10 kHz
	CLOCK_NS      = 1000   // Scan period granularity

	// Words per data frame. 32 words at 1 kHz keeps frame latency well below
	// the display update interval.
	FRAME_WORDS = 32

	// Serial configuration. USB CDC ignores the rate, it is set to match the
	// host default.
	UART_BAUD_RATE = 921600
)

// Analog inputs in channel order. Channel 0 is the cuff pressure transducer.
var PIN_ADC = [...]machine.Pin{machine.A0, machine.A1, machine.A2, machine.A3}
