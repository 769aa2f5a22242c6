package daq

import (
	"fmt"
	"math"
)

// timingModel describes what a software-timed subdevice accepts. Mock and
// Serial validate commands against it in the same stages a kernel driver uses.
type timingModel struct {
	nChan       uint32
	nRanges     uint32
	lenChanlist uint32

	startSrc     uint32
	scanBeginSrc uint32
	convertSrc   uint32
	scanEndSrc   uint32
	stopSrc      uint32

	minConvertNs uint32 // Fastest per-channel conversion
	minScanNs    uint32 // Fastest scan when channels are converted together
	clockNs      uint32 // Timer resolution
}

func isUnique(src uint32) bool {
	return src != 0 && src&(src-1) == 0
}

func maskSrc(src *uint32, allowed uint32) bool {
	orig := *src
	*src &= allowed
	return *src == 0 || *src != orig
}

// test runs the staged validation on cmd and adjusts it in place.
func (m *timingModel) test(cmd *Command) (int, error) {
	if cmd.Subdevice != 0 {
		return 0, fmt.Errorf("%w: subdevice %d", ErrNoSubdevice, cmd.Subdevice)
	}
	if uint32(len(cmd.ChanList)) > m.lenChanlist {
		return 0, fmt.Errorf("%w: channel list length %d exceeds %d", ErrInvalidCommand, len(cmd.ChanList), m.lenChanlist)
	}

	// Stage 1: sources supported at all.
	bad := false
	bad = maskSrc(&cmd.StartSrc, m.startSrc) || bad
	bad = maskSrc(&cmd.ScanBeginSrc, m.scanBeginSrc) || bad
	bad = maskSrc(&cmd.ConvertSrc, m.convertSrc) || bad
	bad = maskSrc(&cmd.ScanEndSrc, m.scanEndSrc) || bad
	bad = maskSrc(&cmd.StopSrc, m.stopSrc) || bad
	if bad {
		return 1, nil
	}

	// Stage 2: unique and mutually compatible.
	if !isUnique(cmd.StartSrc) || !isUnique(cmd.ScanBeginSrc) || !isUnique(cmd.ConvertSrc) ||
		!isUnique(cmd.ScanEndSrc) || !isUnique(cmd.StopSrc) {
		return 2, nil
	}
	if cmd.ScanBeginSrc == TrigFollow && cmd.ConvertSrc != TrigTimer {
		return 2, nil
	}
	if cmd.ConvertSrc == TrigNow && cmd.ScanBeginSrc != TrigTimer {
		return 2, nil
	}

	n := uint32(len(cmd.ChanList))
	if n == 0 {
		n = cmd.ChanListLenHint()
	}

	// Stage 3: arguments within bounds.
	adjusted := false
	set := func(arg *uint32, v uint32) {
		if *arg != v {
			*arg = v
			adjusted = true
		}
	}
	set(&cmd.StartArg, 0)
	switch cmd.ConvertSrc {
	case TrigTimer:
		if cmd.ConvertArg < m.minConvertNs {
			set(&cmd.ConvertArg, m.minConvertNs)
		}
	case TrigNow:
		set(&cmd.ConvertArg, 0)
	}
	switch cmd.ScanBeginSrc {
	case TrigFollow:
		set(&cmd.ScanBeginArg, 0)
	case TrigTimer:
		minScan := m.minScanNs
		if cmd.ConvertSrc == TrigTimer {
			scan := uint64(cmd.ConvertArg) * uint64(n)
			if scan > math.MaxUint32 {
				return 0, fmt.Errorf("%w: %d conversions of %d ns do not fit a 32-bit scan period", ErrInvalidCommand, n, cmd.ConvertArg)
			}
			if uint32(scan) > minScan {
				minScan = uint32(scan)
			}
		}
		if cmd.ScanBeginArg < minScan {
			set(&cmd.ScanBeginArg, minScan)
		}
	}
	if n > 0 {
		set(&cmd.ScanEndArg, n)
	}
	switch cmd.StopSrc {
	case TrigNone:
		set(&cmd.StopArg, 0)
	case TrigCount:
		if cmd.StopArg < 1 {
			set(&cmd.StopArg, 1)
		}
	}
	if adjusted {
		return 3, nil
	}

	// Stage 4: timer arguments on the clock grid.
	if m.clockNs > 1 {
		clock := uint64(m.clockNs)
		round := func(arg *uint32) {
			v := (uint64(*arg) + clock/2) / clock * clock
			if v > math.MaxUint32 {
				v -= clock
			}
			if v == 0 {
				v = clock
			}
			set(arg, uint32(v))
		}
		if cmd.ConvertSrc == TrigTimer {
			round(&cmd.ConvertArg)
		}
		if cmd.ScanBeginSrc == TrigTimer {
			round(&cmd.ScanBeginArg)
		}
		if adjusted {
			return 4, nil
		}
	}

	// Stage 5: channel list.
	for _, cr := range cmd.ChanList {
		if CRChan(cr) >= m.nChan || CRRange(cr) >= m.nRanges {
			return 5, nil
		}
	}

	return 0, nil
}

// ChanListLenHint returns the scan length a command describes when no channel
// list is attached yet.
func (c *Command) ChanListLenHint() uint32 {
	if c.ScanEndSrc == TrigCount {
		return c.ScanEndArg
	}
	return 0
}

// scanPeriodNs returns the time between scans for a validated command.
func scanPeriodNs(cmd *Command) uint64 {
	if cmd.ScanBeginSrc == TrigTimer {
		return uint64(cmd.ScanBeginArg)
	}
	return uint64(cmd.ConvertArg) * uint64(len(cmd.ChanList))
}
