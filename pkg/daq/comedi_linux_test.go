//go:build linux

package daq

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

const is64Bit = unsafe.Sizeof(uintptr(0)) == 8

// Sizes of the kernel's comedi structures; the pointer-free ones are the same
// on every architecture.
func TestComediStructSizes(t *testing.T) {
	assert.Equal(t, uintptr(176), unsafe.Sizeof(comediDevinfo{}))
	assert.Equal(t, uintptr(72), unsafe.Sizeof(comediSubdinfo{}))
	assert.Equal(t, uintptr(12), unsafe.Sizeof(comediKrange{}))
	assert.Equal(t, uintptr(44), unsafe.Sizeof(comediBufinfo{}))

	if !is64Bit {
		t.Skip("pointer-carrying layouts checked on 64-bit only")
	}
	assert.Equal(t, uintptr(48), unsafe.Sizeof(comediChaninfo{}))
	assert.Equal(t, uintptr(16), unsafe.Sizeof(comediRangeinfo{}))
	assert.Equal(t, uintptr(80), unsafe.Sizeof(comediCmd{}))

	var cmd comediCmd
	assert.Equal(t, uintptr(48), unsafe.Offsetof(cmd.ChanList))
	assert.Equal(t, uintptr(56), unsafe.Offsetof(cmd.ChanListLen))
	assert.Equal(t, uintptr(64), unsafe.Offsetof(cmd.Data))
	assert.Equal(t, uintptr(72), unsafe.Offsetof(cmd.DataLen))
}

func TestComediIoctlNumbers(t *testing.T) {
	assert.Equal(t, uintptr(0x80b06401), ioctlDevinfo, "COMEDI_DEVINFO")
	assert.Equal(t, uintptr(0x80486402), ioctlSubdinfo, "COMEDI_SUBDINFO")
	assert.Equal(t, uintptr(0x00006407), ioctlCancel, "COMEDI_CANCEL")
	assert.Equal(t, uintptr(0xc02c640e), ioctlBufinfo, "COMEDI_BUFINFO")

	if !is64Bit {
		t.Skip("pointer-carrying ioctls checked on 64-bit only")
	}
	assert.Equal(t, uintptr(0x80306403), ioctlChaninfo, "COMEDI_CHANINFO")
	assert.Equal(t, uintptr(0x80106408), ioctlRangeinfo, "COMEDI_RANGEINFO")
	assert.Equal(t, uintptr(0x80506409), ioctlCmd, "COMEDI_CMD")
	assert.Equal(t, uintptr(0x8050640a), ioctlCmdtest, "COMEDI_CMDTEST")
}

func TestIoc(t *testing.T) {
	assert.Equal(t, uintptr(0x80046401), ioc(iocRead, 1, 4))
	assert.Equal(t, uintptr(0x40046401), ioc(iocWrite, 1, 4))
	assert.Equal(t, uintptr(0x00006400), ioc(iocNone, 0, 0))
}
