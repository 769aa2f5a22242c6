package acquisition

import (
	"fmt"

	"github.com/itohio/gobpm/pkg/daq"
)

// SourceMask asks the device which trigger sources subdev supports by
// testing a command with every source enabled.
func SourceMask(dev daq.Device, subdev uint) (daq.Command, error) {
	mask := daq.Command{
		Subdevice:    uint32(subdev),
		StartSrc:     daq.TrigAny,
		ScanBeginSrc: daq.TrigAny,
		ConvertSrc:   daq.TrigAny,
		ScanEndSrc:   daq.TrigAny,
		StopSrc:      daq.TrigAny,
	}
	if _, err := dev.CommandTest(&mask); err != nil {
		return daq.Command{}, fmt.Errorf("probe trigger sources: %w", err)
	}
	return mask, nil
}

// GenericTimedCommand builds a continuous command that scans n channels once
// every scanPeriodNs. Per-channel timing is preferred, then per-scan timing
// with simultaneous conversions, then both timers. The result has no channel
// list attached.
func GenericTimedCommand(dev daq.Device, subdev uint, n, scanPeriodNs uint32) (*daq.Command, error) {
	if n == 0 {
		return nil, fmt.Errorf("%w: empty channel list", ErrNoCommandTemplate)
	}

	mask, err := SourceMask(dev, subdev)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoCommandTemplate, err)
	}

	cmd := &daq.Command{Subdevice: uint32(subdev)}

	switch {
	case mask.StartSrc&daq.TrigNow != 0:
		cmd.StartSrc = daq.TrigNow
	case mask.StartSrc&daq.TrigInt != 0:
		cmd.StartSrc = daq.TrigInt
	default:
		return nil, fmt.Errorf("%w: start source %s", ErrNoCommandTemplate, daq.SourceName(mask.StartSrc))
	}

	switch {
	case mask.ConvertSrc&daq.TrigTimer != 0 && mask.ScanBeginSrc&daq.TrigFollow != 0:
		cmd.ConvertSrc = daq.TrigTimer
		cmd.ConvertArg = convertPeriod(scanPeriodNs, n)
		cmd.ScanBeginSrc = daq.TrigFollow
	case mask.ConvertSrc&daq.TrigNow != 0 && mask.ScanBeginSrc&daq.TrigTimer != 0:
		cmd.ConvertSrc = daq.TrigNow
		cmd.ScanBeginSrc = daq.TrigTimer
		cmd.ScanBeginArg = scanPeriodNs
	case mask.ConvertSrc&daq.TrigTimer != 0 && mask.ScanBeginSrc&daq.TrigTimer != 0:
		cmd.ConvertSrc = daq.TrigTimer
		cmd.ConvertArg = convertPeriod(scanPeriodNs, n)
		cmd.ScanBeginSrc = daq.TrigTimer
		cmd.ScanBeginArg = scanPeriodNs
	default:
		return nil, fmt.Errorf("%w: no timer for scan_begin=%s convert=%s", ErrNoCommandTemplate,
			daq.SourceName(mask.ScanBeginSrc), daq.SourceName(mask.ConvertSrc))
	}

	cmd.ScanEndSrc = daq.TrigCount
	cmd.ScanEndArg = n

	switch {
	case mask.StopSrc&daq.TrigCount != 0:
		cmd.StopSrc = daq.TrigCount
		cmd.StopArg = 2
	case mask.StopSrc&daq.TrigNone != 0:
		cmd.StopSrc = daq.TrigNone
		cmd.StopArg = 0
	default:
		return nil, fmt.Errorf("%w: stop source %s", ErrNoCommandTemplate, daq.SourceName(mask.StopSrc))
	}

	// Let the device snap the arguments: a second test after an argument
	// adjustment must leave at most rounding.
	ret, err := dev.CommandTest(cmd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoCommandTemplate, err)
	}
	if ret == 3 {
		if ret, err = dev.CommandTest(cmd); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoCommandTemplate, err)
		}
	}
	if ret != 0 && ret != 4 {
		return nil, fmt.Errorf("%w: %s", ErrNoCommandTemplate, daq.StageName(ret))
	}

	return cmd, nil
}

// convertPeriod spreads a scan period over n conversions, rounded to nearest.
func convertPeriod(scanPeriodNs, n uint32) uint32 {
	return uint32((uint64(scanPeriodNs) + uint64(n/2)) / uint64(n))
}
