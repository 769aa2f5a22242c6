//go:build linux

package daq

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Subdevice flags that move per-channel data into CHANINFO.
const (
	sdfMaxDataPerChannel uint32 = 0x0010
	sdfRangePerChannel   uint32 = 0x0040
)

const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, nr, size uintptr) uintptr {
	return dir<<30 | size<<16 | uintptr('d')<<8 | nr
}

type comediDevinfo struct {
	Version        uint32
	NSubdevs       uint32
	DriverName     [20]byte
	BoardName      [20]byte
	ReadSubdevice  int32
	WriteSubdevice int32
	Unused         [30]int32
}

type comediSubdinfo struct {
	Type            uint32
	NChan           uint32
	SubdFlags       uint32
	TimerType       uint32
	LenChanlist     uint32
	MaxData         uint32
	Flags           uint32
	RangeType       uint32
	SettlingTime0   uint32
	InsnBitsSupport uint32
	Unused          [8]uint32
}

type comediChaninfo struct {
	Subdev      uint32
	MaxDataList unsafe.Pointer
	FlagList    unsafe.Pointer
	RangeList   unsafe.Pointer
	Unused      [4]uint32
}

type comediRangeinfo struct {
	RangeType uint32
	RangePtr  unsafe.Pointer
}

type comediKrange struct {
	Min   int32
	Max   int32
	Flags uint32
}

type comediCmd struct {
	Subdev       uint32
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
	ChanList     unsafe.Pointer
	ChanListLen  uint32
	Data         unsafe.Pointer
	DataLen      uint32
}

type comediBufinfo struct {
	Subdevice     uint32
	BytesRead     uint32
	BufWritePtr   uint32
	BufReadPtr    uint32
	BufWriteCount uint32
	BufReadCount  uint32
	BytesWritten  uint32
	Unused        [4]uint32
}

var (
	ioctlDevinfo   = ioc(iocRead, 1, unsafe.Sizeof(comediDevinfo{}))
	ioctlSubdinfo  = ioc(iocRead, 2, unsafe.Sizeof(comediSubdinfo{}))
	ioctlChaninfo  = ioc(iocRead, 3, unsafe.Sizeof(comediChaninfo{}))
	ioctlCancel    = ioc(iocNone, 7, 0)
	ioctlRangeinfo = ioc(iocRead, 8, unsafe.Sizeof(comediRangeinfo{}))
	ioctlCmd       = ioc(iocRead, 9, unsafe.Sizeof(comediCmd{}))
	ioctlCmdtest   = ioc(iocRead, 10, unsafe.Sizeof(comediCmd{}))
	ioctlBufinfo   = ioc(iocRead|iocWrite, 14, unsafe.Sizeof(comediBufinfo{}))
)

// Ensure Comedi implements Device.
var _ Device = (*Comedi)(nil)

// Comedi is a Device backed by a Linux comedi character device.
type Comedi struct {
	path    string
	fd      int
	info    BoardInfo
	subdevs []comediSubdinfo

	mu     sync.Mutex
	closed bool
}

func ioctl(fd int, req uintptr, arg unsafe.Pointer) (int, error) {
	for {
		r, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
		if errno == unix.EINTR {
			continue
		}
		if errno != 0 {
			return int(r), errno
		}
		return int(r), nil
	}
}

// OpenComedi opens the comedi device at path and reads its subdevice table.
func OpenComedi(path string) (*Comedi, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}

	var di comediDevinfo
	if _, err := ioctl(fd, ioctlDevinfo, unsafe.Pointer(&di)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%s: device info: %w", path, err)
	}

	subdevs := make([]comediSubdinfo, di.NSubdevs)
	if len(subdevs) > 0 {
		if _, err := ioctl(fd, ioctlSubdinfo, unsafe.Pointer(&subdevs[0])); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("%s: subdevice info: %w", path, err)
		}
	}

	return &Comedi{
		path: path,
		fd:   fd,
		info: BoardInfo{
			Driver: cString(di.DriverName[:]),
			Board:  cString(di.BoardName[:]),
		},
		subdevs: subdevs,
	}, nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func (c *Comedi) subdev(subdev uint) (*comediSubdinfo, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrNotConnected
	}
	if subdev >= uint(len(c.subdevs)) {
		return nil, fmt.Errorf("%w: %d", ErrNoSubdevice, subdev)
	}
	return &c.subdevs[subdev], nil
}

// chaninfo fetches the per-channel maxdata and range tables of a subdevice.
func (c *Comedi) chaninfo(subdev uint, sd *comediSubdinfo) (maxData, ranges []uint32, err error) {
	n := int(sd.NChan)
	if n == 0 {
		return nil, nil, nil
	}
	maxData = make([]uint32, n)
	ranges = make([]uint32, n)
	ci := comediChaninfo{
		Subdev:      uint32(subdev),
		MaxDataList: unsafe.Pointer(&maxData[0]),
		RangeList:   unsafe.Pointer(&ranges[0]),
	}
	_, err = ioctl(c.fd, ioctlChaninfo, unsafe.Pointer(&ci))
	runtime.KeepAlive(maxData)
	runtime.KeepAlive(ranges)
	if err != nil {
		return nil, nil, fmt.Errorf("channel info: %w", err)
	}
	return maxData, ranges, nil
}

// Info returns the driver and board names.
func (c *Comedi) Info() BoardInfo { return c.info }

// NumChannels returns the channel count of a subdevice.
func (c *Comedi) NumChannels(subdev uint) (int, error) {
	sd, err := c.subdev(subdev)
	if err != nil {
		return 0, err
	}
	return int(sd.NChan), nil
}

// MaxData returns the maximum raw code of a channel.
func (c *Comedi) MaxData(subdev, channel uint) (uint32, error) {
	sd, err := c.subdev(subdev)
	if err != nil {
		return 0, err
	}
	if channel >= uint(sd.NChan) {
		return 0, fmt.Errorf("%w: channel %d", ErrInvalidCommand, channel)
	}
	if sd.SubdFlags&sdfMaxDataPerChannel == 0 && sd.MaxData != 0 {
		return sd.MaxData, nil
	}
	maxData, _, err := c.chaninfo(subdev, sd)
	if err != nil {
		return 0, err
	}
	return maxData[channel], nil
}

// Range returns the physical span of rangeID on a channel.
func (c *Comedi) Range(subdev, channel, rangeID uint) (Range, error) {
	sd, err := c.subdev(subdev)
	if err != nil {
		return Range{}, err
	}
	if channel >= uint(sd.NChan) {
		return Range{}, fmt.Errorf("%w: channel %d", ErrInvalidCommand, channel)
	}

	rt := sd.RangeType
	if sd.SubdFlags&sdfRangePerChannel != 0 || rt == 0 {
		_, ranges, err := c.chaninfo(subdev, sd)
		if err != nil {
			return Range{}, err
		}
		rt = ranges[channel]
	}

	n := rt & 0xffff
	if uint32(rangeID) >= n {
		return Range{}, fmt.Errorf("%w: %d of %d", ErrNoRange, rangeID, n)
	}

	kr := make([]comediKrange, n)
	ri := comediRangeinfo{RangeType: rt, RangePtr: unsafe.Pointer(&kr[0])}
	_, err = ioctl(c.fd, ioctlRangeinfo, unsafe.Pointer(&ri))
	runtime.KeepAlive(kr)
	if err != nil {
		return Range{}, fmt.Errorf("range info: %w", err)
	}

	r := kr[rangeID]
	return Range{
		Min:  float64(r.Min) * 1e-6,
		Max:  float64(r.Max) * 1e-6,
		Unit: r.Flags & 0xff,
	}, nil
}

// SubdeviceFlags returns the subdevice flags reported at open time.
func (c *Comedi) SubdeviceFlags(subdev uint) (uint32, error) {
	sd, err := c.subdev(subdev)
	if err != nil {
		return 0, err
	}
	return sd.SubdFlags, nil
}

func toRawCmd(cmd *Command) comediCmd {
	raw := comediCmd{
		Subdev:       cmd.Subdevice,
		Flags:        cmd.Flags,
		StartSrc:     cmd.StartSrc,
		StartArg:     cmd.StartArg,
		ScanBeginSrc: cmd.ScanBeginSrc,
		ScanBeginArg: cmd.ScanBeginArg,
		ConvertSrc:   cmd.ConvertSrc,
		ConvertArg:   cmd.ConvertArg,
		ScanEndSrc:   cmd.ScanEndSrc,
		ScanEndArg:   cmd.ScanEndArg,
		StopSrc:      cmd.StopSrc,
		StopArg:      cmd.StopArg,
		ChanListLen:  uint32(len(cmd.ChanList)),
	}
	if len(cmd.ChanList) > 0 {
		raw.ChanList = unsafe.Pointer(&cmd.ChanList[0])
	} else {
		// Template probing passes the length without a list.
		raw.ChanListLen = cmd.ChanListLenHint()
	}
	return raw
}

func fromRawCmd(cmd *Command, raw *comediCmd) {
	cmd.Flags = raw.Flags
	cmd.StartSrc, cmd.StartArg = raw.StartSrc, raw.StartArg
	cmd.ScanBeginSrc, cmd.ScanBeginArg = raw.ScanBeginSrc, raw.ScanBeginArg
	cmd.ConvertSrc, cmd.ConvertArg = raw.ConvertSrc, raw.ConvertArg
	cmd.ScanEndSrc, cmd.ScanEndArg = raw.ScanEndSrc, raw.ScanEndArg
	cmd.StopSrc, cmd.StopArg = raw.StopSrc, raw.StopArg
}

// CommandTest asks the driver to validate cmd. The kernel adjusts the
// command in place and returns the stage that changed it.
func (c *Comedi) CommandTest(cmd *Command) (int, error) {
	if _, err := c.subdev(uint(cmd.Subdevice)); err != nil {
		return 0, err
	}
	raw := toRawCmd(cmd)
	ret, err := ioctl(c.fd, ioctlCmdtest, unsafe.Pointer(&raw))
	runtime.KeepAlive(cmd.ChanList)
	if err != nil {
		return -1, fmt.Errorf("command test: %w", err)
	}
	fromRawCmd(cmd, &raw)
	return ret, nil
}

// Command starts the acquisition described by cmd.
func (c *Comedi) Command(cmd *Command) error {
	if _, err := c.subdev(uint(cmd.Subdevice)); err != nil {
		return err
	}
	raw := toRawCmd(cmd)
	_, err := ioctl(c.fd, ioctlCmd, unsafe.Pointer(&raw))
	runtime.KeepAlive(cmd.ChanList)
	fromRawCmd(cmd, &raw)
	switch {
	case errors.Is(err, unix.EBUSY):
		return ErrBusy
	case errors.Is(err, unix.EAGAIN):
		return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	case err != nil:
		return fmt.Errorf("command: %w", err)
	}
	return nil
}

// Read reads samples from the running acquisition. A zero-length read from
// the kernel marks the end of the acquisition.
func (c *Comedi) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(c.fd, p)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EPIPE:
			return 0, ErrBufferOverflow
		case err != nil:
			return 0, &os.PathError{Op: "read", Path: c.path, Err: err}
		case n == 0 && len(p) > 0:
			return 0, io.EOF
		}
		return n, nil
	}
}

// BufferContents returns the number of bytes the kernel holds for subdev.
func (c *Comedi) BufferContents(subdev uint) (int, error) {
	if _, err := c.subdev(subdev); err != nil {
		return 0, err
	}
	bi := comediBufinfo{Subdevice: uint32(subdev)}
	if _, err := ioctl(c.fd, ioctlBufinfo, unsafe.Pointer(&bi)); err != nil {
		return 0, fmt.Errorf("buffer info: %w", err)
	}
	return int(bi.BufWriteCount - bi.BufReadCount), nil
}

// Cancel stops the acquisition running on subdev.
func (c *Comedi) Cancel(subdev uint) error {
	if _, err := c.subdev(subdev); err != nil {
		return err
	}
	if err := unix.IoctlSetInt(c.fd, uint(ioctlCancel), int(subdev)); err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	return nil
}

// Close closes the device file.
func (c *Comedi) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return unix.Close(c.fd)
}
