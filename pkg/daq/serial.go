package daq

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"github.com/itohio/gobpm/pkg/config"
)

const (
	// DefaultBaudRate is the USB CDC rate the ADC bridge firmware uses.
	DefaultBaudRate = 921600
	// handshakeTimeout bounds the wait for the INFO reply.
	handshakeTimeout = 2 * time.Second
	// frameTag starts a binary data frame: 'D', uint16 LE count, count uint16 LE codes.
	frameTag = 'D'
)

// ErrDeviceReported wraps an ERR line sent by the firmware.
var ErrDeviceReported = errors.New("daq: device reported error")

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// serialInfo is the capability line the firmware answers to "I".
// Format: INFO <channels> <bits> <min_period_ns> <clock_ns>
type serialInfo struct {
	Channels    int
	Bits        int
	MinPeriodNs uint32
	ClockNs     uint32
}

func parseInfo(line string) (serialInfo, error) {
	fields := strings.Fields(line)
	if len(fields) != 5 || fields[0] != "INFO" {
		return serialInfo{}, fmt.Errorf("invalid info line %q", line)
	}

	var vals [4]uint64
	for i := range vals {
		v, err := strconv.ParseUint(fields[i+1], 10, 32)
		if err != nil {
			return serialInfo{}, fmt.Errorf("invalid info field %d: %w", i+1, err)
		}
		vals[i] = v
	}

	info := serialInfo{
		Channels:    int(vals[0]),
		Bits:        int(vals[1]),
		MinPeriodNs: uint32(vals[2]),
		ClockNs:     uint32(vals[3]),
	}
	if info.Channels < 1 {
		return serialInfo{}, fmt.Errorf("invalid channel count %d", info.Channels)
	}
	if info.Bits < 1 || info.Bits > 16 {
		return serialInfo{}, fmt.Errorf("invalid resolution %d bits", info.Bits)
	}
	return info, nil
}

// formatStart builds the start command for a validated command.
// Format: S <period_ns> <stop_count> <ch0,ch1,...>
func formatStart(cmd *Command) string {
	stop := uint32(0)
	if cmd.StopSrc == TrigCount {
		stop = cmd.StopArg
	}
	chans := make([]string, len(cmd.ChanList))
	for i, cr := range cmd.ChanList {
		chans[i] = strconv.FormatUint(uint64(CRChan(cr)), 10)
	}
	return fmt.Sprintf("S %d %d %s\n", scanPeriodNs(cmd), stop, strings.Join(chans, ","))
}

// Serial is a Device backed by the ADC bridge firmware over a serial port.
// The firmware paces scans itself, so commands use a per-scan timer with
// back-to-back conversions.
type Serial struct {
	port     string
	baudRate int
	sensor   *config.SensorConfig
	log      logrus.FieldLogger

	mu        sync.RWMutex
	conn      io.ReadWriteCloser
	info      chan string
	model     timingModel
	maxData   uint32
	ranges    []Range
	stream    *streamBuffer
	running   bool
	connected bool
	done      chan struct{}
}

// NewSerial creates a new serial Device for the given port settings.
func NewSerial(cfg *config.SerialConfig, sensor *config.SensorConfig, log logrus.FieldLogger) *Serial {
	def := config.Default()
	if cfg == nil {
		cfg = &def.Serial
	}
	if sensor == nil {
		sensor = &def.Sensor
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	baud := cfg.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}

	return &Serial{
		port:     cfg.Port,
		baudRate: baud,
		sensor:   sensor,
		log:      log.WithField("port", cfg.Port),
	}
}

// Connect opens the serial port and queries the firmware capabilities.
func (d *Serial) Connect() error {
	port, err := serial.Open(d.port, &serial.Mode{BaudRate: d.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}
	if err := d.attach(port); err != nil {
		port.Close()
		return err
	}
	return nil
}

// attach starts the frame reader on conn and performs the INFO handshake.
func (d *Serial) attach(conn io.ReadWriteCloser) error {
	d.mu.Lock()
	if d.connected {
		d.mu.Unlock()
		return fmt.Errorf("already connected")
	}
	d.conn = conn
	d.info = make(chan string, 1)
	d.done = make(chan struct{})
	d.connected = true
	d.mu.Unlock()

	go d.readFrames(bufio.NewReader(conn))

	if _, err := io.WriteString(conn, "I\n"); err != nil {
		d.Close()
		return fmt.Errorf("failed to query device info: %w", err)
	}

	var line string
	select {
	case line = <-d.info:
	case <-d.done:
		d.Close()
		return fmt.Errorf("%w: connection closed during handshake", ErrNotConnected)
	case <-time.After(handshakeTimeout):
		d.Close()
		return fmt.Errorf("%w: no info reply within %v", ErrNotConnected, handshakeTimeout)
	}

	info, err := parseInfo(line)
	if err != nil {
		d.Close()
		return err
	}

	d.mu.Lock()
	d.maxData = uint32(1)<<info.Bits - 1
	d.ranges = []Range{{Min: 0, Max: d.sensor.Reference, Unit: UnitVolt}}
	d.model = timingModel{
		nChan:        uint32(info.Channels),
		nRanges:      1,
		lenChanlist:  uint32(info.Channels),
		startSrc:     TrigNow,
		scanBeginSrc: TrigTimer,
		convertSrc:   TrigNow,
		scanEndSrc:   TrigCount,
		stopSrc:      TrigCount | TrigNone,
		minConvertNs: 0,
		minScanNs:    info.MinPeriodNs,
		clockNs:      info.ClockNs,
	}
	d.mu.Unlock()

	d.log.WithFields(logrus.Fields{
		"channels": info.Channels,
		"bits":     info.Bits,
	}).Info("ADC bridge connected")

	return nil
}

// readFrames demultiplexes text replies and binary data frames.
func (d *Serial) readFrames(r *bufio.Reader) {
	defer close(d.done)

	for {
		tag, err := r.ReadByte()
		if err != nil {
			d.endStream(fmt.Errorf("%w: %v", ErrNotConnected, err))
			return
		}

		if tag == frameTag {
			if err := d.readFrame(r); err != nil {
				d.endStream(fmt.Errorf("%w: %v", ErrNotConnected, err))
				return
			}
			continue
		}

		rest, err := r.ReadString('\n')
		if err != nil {
			d.endStream(fmt.Errorf("%w: %v", ErrNotConnected, err))
			return
		}
		line := strings.TrimSpace(string(tag) + rest)

		switch {
		case line == "":
		case strings.HasPrefix(line, "INFO"):
			select {
			case d.info <- line:
			default:
			}
		case line == "END":
			d.endStream(nil)
		case strings.HasPrefix(line, "ERR"):
			d.endStream(fmt.Errorf("%w: %s", ErrDeviceReported, strings.TrimSpace(strings.TrimPrefix(line, "ERR"))))
		default:
			d.log.WithField("line", line).Debug("Ignoring unexpected line")
		}
	}
}

// readFrame copies one data frame into the acquisition buffer in host order.
func (d *Serial) readFrame(r *bufio.Reader) error {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return err
	}
	count := int(binary.LittleEndian.Uint16(hdr[:]))

	payload := make([]byte, count*2)
	if _, err := io.ReadFull(r, payload); err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		binary.NativeEndian.PutUint16(payload[i*2:], binary.LittleEndian.Uint16(payload[i*2:]))
	}

	d.mu.RLock()
	sb, running := d.stream, d.running
	d.mu.RUnlock()

	if sb == nil || !running {
		return nil
	}
	if _, err := sb.Write(payload); err != nil {
		d.log.WithError(err).Warn("Acquisition buffer overflow")
	}
	return nil
}

func (d *Serial) endStream(err error) {
	d.mu.Lock()
	sb := d.stream
	d.running = false
	d.mu.Unlock()

	if sb != nil {
		sb.CloseWithError(err)
	}
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

func (d *Serial) check(subdev uint) error {
	if !d.IsConnected() {
		return ErrNotConnected
	}
	if subdev != 0 {
		return fmt.Errorf("%w: %d", ErrNoSubdevice, subdev)
	}
	return nil
}

// Info returns the board identity.
func (d *Serial) Info() BoardInfo {
	return BoardInfo{Driver: "serial", Board: d.port}
}

// NumChannels returns the number of analog inputs the firmware reported.
func (d *Serial) NumChannels(subdev uint) (int, error) {
	if err := d.check(subdev); err != nil {
		return 0, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return int(d.model.nChan), nil
}

// MaxData returns the maximum raw code.
func (d *Serial) MaxData(subdev, channel uint) (uint32, error) {
	if err := d.check(subdev); err != nil {
		return 0, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.maxData, nil
}

// Range returns the ADC reference span.
func (d *Serial) Range(subdev, channel, rangeID uint) (Range, error) {
	if err := d.check(subdev); err != nil {
		return Range{}, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if rangeID >= uint(len(d.ranges)) {
		return Range{}, fmt.Errorf("%w: %d", ErrNoRange, rangeID)
	}
	return d.ranges[rangeID], nil
}

// SubdeviceFlags returns the subdevice flags. Samples are 16 bit.
func (d *Serial) SubdeviceFlags(subdev uint) (uint32, error) {
	if err := d.check(subdev); err != nil {
		return 0, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	flags := SDFReadable | SDFCmd | SDFGround
	if d.running {
		flags |= SDFBusy
	}
	return flags, nil
}

// CommandTest validates cmd against the firmware pacer.
func (d *Serial) CommandTest(cmd *Command) (int, error) {
	if err := d.check(uint(cmd.Subdevice)); err != nil {
		return 0, err
	}
	d.mu.RLock()
	model := d.model
	d.mu.RUnlock()
	return model.test(cmd)
}

// Command starts a firmware-paced acquisition.
func (d *Serial) Command(cmd *Command) error {
	if err := d.check(uint(cmd.Subdevice)); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	checked := *cmd
	checked.ChanList = append([]uint32(nil), cmd.ChanList...)
	ret, err := d.model.test(&checked)
	if err != nil {
		return err
	}
	if ret != 0 {
		*cmd = checked
		return fmt.Errorf("%w: %s", ErrInvalidCommand, StageName(ret))
	}
	if len(checked.ChanList) == 0 {
		return fmt.Errorf("%w: empty channel list", ErrInvalidCommand)
	}
	if d.running {
		return ErrBusy
	}

	d.stream = newStreamBuffer(DefaultStreamLimit)
	d.running = true

	if _, err := io.WriteString(d.conn, formatStart(&checked)); err != nil {
		d.running = false
		d.stream.CloseWithError(err)
		return fmt.Errorf("failed to send start command: %w", err)
	}
	return nil
}

// Read reads bytes from the running acquisition.
func (d *Serial) Read(p []byte) (int, error) {
	d.mu.RLock()
	sb := d.stream
	d.mu.RUnlock()

	if sb == nil {
		return 0, io.EOF
	}
	return sb.Read(p)
}

// BufferContents returns the number of bytes waiting to be read.
func (d *Serial) BufferContents(subdev uint) (int, error) {
	if err := d.check(subdev); err != nil {
		return 0, err
	}
	d.mu.RLock()
	sb := d.stream
	d.mu.RUnlock()
	if sb == nil {
		return 0, nil
	}
	return sb.Len(), nil
}

// Cancel stops the running acquisition.
func (d *Serial) Cancel(subdev uint) error {
	if err := d.check(subdev); err != nil {
		return err
	}

	d.mu.Lock()
	running, conn := d.running, d.conn
	d.mu.Unlock()

	if !running {
		return nil
	}
	d.endStream(nil)

	if _, err := io.WriteString(conn, "X\n"); err != nil {
		return fmt.Errorf("failed to send stop command: %w", err)
	}
	return nil
}

// Close stops any acquisition and closes the port.
func (d *Serial) Close() error {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return nil
	}
	conn, done := d.conn, d.done
	d.connected = false
	d.conn = nil
	d.mu.Unlock()

	d.endStream(nil)

	if err := conn.Close(); err != nil {
		d.log.WithError(err).Warn("Error closing serial port")
	}
	<-done

	return nil
}
