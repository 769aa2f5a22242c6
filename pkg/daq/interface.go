package daq

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
)

// Trigger sources. Sources are bit masks; a command test narrows them down to
// the ones the subdevice supports.
const (
	TrigNone   uint32 = 0x00000001
	TrigNow    uint32 = 0x00000002
	TrigFollow uint32 = 0x00000004
	TrigTime   uint32 = 0x00000008
	TrigTimer  uint32 = 0x00000010
	TrigCount  uint32 = 0x00000020
	TrigExt    uint32 = 0x00000040
	TrigInt    uint32 = 0x00000080
	TrigOther  uint32 = 0x00000100
	TrigAny    uint32 = 0xffffffff
)

// Subdevice flags.
const (
	SDFBusy     uint32 = 0x0001
	SDFLocked   uint32 = 0x0004
	SDFCmd      uint32 = 0x1000
	SDFReadable uint32 = 0x00010000
	SDFWritable uint32 = 0x00020000
	SDFGround   uint32 = 0x00100000
	SDFCommon   uint32 = 0x00200000
	SDFDiff     uint32 = 0x00400000
	SDFLSampl   uint32 = 0x10000000
)

// Analog references.
const (
	ARefGround uint32 = 0x00
	ARefCommon uint32 = 0x01
	ARefDiff   uint32 = 0x02
	ARefOther  uint32 = 0x03
)

// Range units.
const (
	UnitVolt uint32 = 0
	UnitMA   uint32 = 1
	UnitNone uint32 = 2
)

// OORBehavior selects what ToPhysical returns for codes at the rails.
type OORBehavior int

const (
	OORNumber OORBehavior = iota
	OORNaN
)

var (
	ErrNotConnected   = errors.New("daq: not connected")
	ErrInvalidCommand = errors.New("daq: invalid command")
	ErrBusy           = errors.New("daq: subdevice busy")
	ErrNoSubdevice    = errors.New("daq: no such subdevice")
	ErrNoRange        = errors.New("daq: no such range")
	ErrBufferOverflow = errors.New("daq: acquisition buffer overflow")
	ErrUnsupported    = errors.New("daq: backend not supported on this platform")
)

// Command is a streaming acquisition command for one subdevice.
type Command struct {
	Subdevice    uint32
	Flags        uint32
	StartSrc     uint32
	StartArg     uint32
	ScanBeginSrc uint32
	ScanBeginArg uint32
	ConvertSrc   uint32
	ConvertArg   uint32
	ScanEndSrc   uint32
	ScanEndArg   uint32
	StopSrc      uint32
	StopArg      uint32
	ChanList     []uint32
}

// String formats the command the way it is logged during negotiation.
func (c *Command) String() string {
	return fmt.Sprintf("subdev=%d start=%s:%d scan_begin=%s:%d convert=%s:%d scan_end=%s:%d stop=%s:%d chanlist=%d",
		c.Subdevice,
		SourceName(c.StartSrc), c.StartArg,
		SourceName(c.ScanBeginSrc), c.ScanBeginArg,
		SourceName(c.ConvertSrc), c.ConvertArg,
		SourceName(c.ScanEndSrc), c.ScanEndArg,
		SourceName(c.StopSrc), c.StopArg,
		len(c.ChanList))
}

// Range is the physical span of one input range.
type Range struct {
	Min  float64
	Max  float64
	Unit uint32
}

// BoardInfo identifies the hardware behind a Device.
type BoardInfo struct {
	Driver string
	Board  string
}

// Device is a timed analog input subsystem (real or mocked).
// Read returns bytes from the running command's sample stream; it blocks until
// data is available and returns io.EOF once the acquisition has ended.
type Device interface {
	io.Reader
	Close() error
	Info() BoardInfo
	NumChannels(subdev uint) (int, error)
	MaxData(subdev, channel uint) (uint32, error)
	Range(subdev, channel, rangeID uint) (Range, error)
	SubdeviceFlags(subdev uint) (uint32, error)
	// CommandTest validates cmd and adjusts it in place. A positive result names
	// the stage that changed the command; zero means the command is valid.
	CommandTest(cmd *Command) (int, error)
	Command(cmd *Command) error
	BufferContents(subdev uint) (int, error)
	Cancel(subdev uint) error
}

// Ensure backends implement Device.
var (
	_ Device = (*Mock)(nil)
	_ Device = (*Serial)(nil)
)

// CRPack packs a channel descriptor for a channel list.
func CRPack(channel, rangeID, aref uint32) uint32 {
	return (aref&0x3)<<24 | (rangeID&0xff)<<16 | channel
}

// CRChan returns the channel index of a packed descriptor.
func CRChan(x uint32) uint32 { return x & 0xffff }

// CRRange returns the range index of a packed descriptor.
func CRRange(x uint32) uint32 { return (x >> 16) & 0xff }

// CRARef returns the analog reference of a packed descriptor.
func CRARef(x uint32) uint32 { return (x >> 24) & 0x03 }

// ParseARef converts a configuration name into an analog reference.
func ParseARef(name string) (uint32, error) {
	switch strings.ToLower(name) {
	case "", "ground", "gnd":
		return ARefGround, nil
	case "common", "com":
		return ARefCommon, nil
	case "diff", "differential":
		return ARefDiff, nil
	case "other":
		return ARefOther, nil
	}
	return 0, fmt.Errorf("unknown analog reference %q", name)
}

// ToPhysical converts a raw code into physical units using linear mapping of
// [0, maxData] onto [rng.Min, rng.Max].
func ToPhysical(data uint32, rng Range, maxData uint32, oor OORBehavior) float64 {
	if maxData == 0 {
		return rng.Min
	}
	if oor == OORNaN && (data == 0 || data >= maxData) {
		return math.NaN()
	}
	return rng.Min + (rng.Max-rng.Min)*float64(data)/float64(maxData)
}

// FromPhysical converts a physical value into the nearest raw code, clamped to
// [0, maxData].
func FromPhysical(value float64, rng Range, maxData uint32) uint32 {
	span := rng.Max - rng.Min
	if span == 0 {
		return 0
	}
	code := math.Round((value - rng.Min) / span * float64(maxData))
	if code < 0 {
		return 0
	}
	if code > float64(maxData) {
		return maxData
	}
	return uint32(code)
}

// SourceName returns a short name for a trigger source mask.
func SourceName(src uint32) string {
	if src == TrigAny {
		return "any"
	}
	names := []struct {
		bit  uint32
		name string
	}{
		{TrigNone, "none"},
		{TrigNow, "now"},
		{TrigFollow, "follow"},
		{TrigTime, "time"},
		{TrigTimer, "timer"},
		{TrigCount, "count"},
		{TrigExt, "ext"},
		{TrigInt, "int"},
		{TrigOther, "other"},
	}
	var parts []string
	for _, n := range names {
		if src&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "0"
	}
	return strings.Join(parts, "|")
}

// StageName describes the command test stage reported by CommandTest.
func StageName(stage int) string {
	switch stage {
	case 0:
		return "valid"
	case 1:
		return "trigger sources masked"
	case 2:
		return "trigger sources not unique or incompatible"
	case 3:
		return "arguments adjusted"
	case 4:
		return "timer arguments rounded"
	case 5:
		return "channel list rejected"
	}
	return fmt.Sprintf("stage %d", stage)
}
