//go:build tinygo

//go:generate tinygo flash -target=xiao

// The ADC bridge firmware samples up to four analog inputs at a host
// requested period and streams the codes as binary frames.
//
// Host commands, one per line:
//
//	I                       reply "INFO <channels> <bits> <min_period_ns> <clock_ns>"
//	S <period_ns> <stop> <ch0,ch1,...>
//	                        start scanning; stop is the scan count, 0 runs until X
//	X                       stop scanning
//
// Data frames are 'D', a little-endian uint16 word count and the words.
// "END" follows the last frame of a counted acquisition. Rejected commands
// are answered with "ERR <reason>".
package main

import (
	"encoding/binary"
	"machine"
	"strconv"
	"strings"
	"time"
)

var (
	adcs [len(PIN_ADC)]machine.ADC
	port = machine.Serial

	// Running acquisition
	running  bool
	period   time.Duration
	stopAt   uint32
	scans    uint32
	chanList [len(PIN_ADC)]int
	nChan    int
	nextScan time.Time

	// Outgoing data frame: tag, count, words
	frame      [3 + 2*FRAME_WORDS]byte
	frameWords int

	// Serial buffer for reading lines
	serialBuffer [64]byte
	serialPos    int
)

func main() {
	adcConfig := machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	}
	for i, pin := range PIN_ADC {
		pin.Configure(machine.PinConfig{Mode: machine.PinInput})
		adcs[i] = machine.ADC{Pin: pin}
		adcs[i].Configure(adcConfig)
	}

	port.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	for {
		processSerial()

		if running && !time.Now().Before(nextScan) {
			scan()
			// Schedule from the previous deadline so the period does not drift.
			nextScan = nextScan.Add(period)
		}
	}
}

func scan() {
	for _, ch := range chanList[:nChan] {
		// Get scales every resolution to 16 bits.
		code := adcs[ch].Get() >> (16 - ADC_RESOLUTION)
		binary.LittleEndian.PutUint16(frame[3+2*frameWords:], code)
		frameWords++
		if frameWords+nChan > FRAME_WORDS {
			flushFrame()
		}
	}

	scans++
	if stopAt != 0 && scans >= stopAt {
		flushFrame()
		running = false
		port.Write([]byte("END\n"))
	}
}

func flushFrame() {
	if frameWords == 0 {
		return
	}
	frame[0] = 'D'
	binary.LittleEndian.PutUint16(frame[1:], uint16(frameWords))
	port.Write(frame[:3+2*frameWords])
	frameWords = 0
}

func processSerial() {
	for port.Buffered() > 0 {
		data, err := port.ReadByte()
		if err != nil {
			break
		}

		if data == '\n' || data == '\r' {
			if serialPos > 0 {
				handleCommand(string(serialBuffer[:serialPos]))
			}
			serialPos = 0
			continue
		}

		if serialPos < len(serialBuffer) {
			serialBuffer[serialPos] = data
			serialPos++
		}
	}
}

func handleCommand(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "I":
		reply("INFO " + strconv.Itoa(len(PIN_ADC)) + " " + strconv.Itoa(ADC_RESOLUTION) + " " +
			strconv.Itoa(MIN_PERIOD_NS) + " " + strconv.Itoa(CLOCK_NS))
	case "S":
		if err := start(fields[1:]); err != "" {
			reply("ERR " + err)
		}
	case "X":
		running = false
		frameWords = 0
	default:
		reply("ERR unknown command " + fields[0])
	}
}

// start parses and starts an acquisition. It returns the rejection reason.
func start(args []string) string {
	if running {
		return "busy"
	}
	if len(args) != 3 {
		return "usage: S <period_ns> <stop> <channels>"
	}

	p, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil || p < MIN_PERIOD_NS || p%CLOCK_NS != 0 {
		return "invalid period " + args[0]
	}
	stop, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return "invalid stop " + args[1]
	}

	chans := strings.Split(args[2], ",")
	if len(chans) > len(PIN_ADC) {
		return "too many channels"
	}
	for i, c := range chans {
		ch, err := strconv.Atoi(c)
		if err != nil || ch < 0 || ch >= len(PIN_ADC) {
			return "invalid channel " + c
		}
		chanList[i] = ch
	}

	nChan = len(chans)
	period = time.Duration(p)
	stopAt = uint32(stop)
	scans = 0
	frameWords = 0
	nextScan = time.Now()
	running = true
	return ""
}

func reply(line string) {
	port.Write([]byte(line + "\n"))
}
