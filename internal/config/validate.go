package config

import (
	"errors"
	"fmt"

	"go.bug.st/serial"
)

// ErrInvalidConfig is returned when the merged configuration cannot drive a run.
var ErrInvalidConfig = errors.New("invalid configuration")

// Mode converts the line settings into a serial port mode.
func (s SerialConfig) Mode() (*serial.Mode, error) {
	if s.Speed <= 0 {
		return nil, fmt.Errorf("%w: speed must be positive, got %d", ErrInvalidConfig, s.Speed)
	}

	var stopBits serial.StopBits
	switch s.StopBits {
	case 1:
		stopBits = serial.OneStopBit
	case 2:
		stopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("%w: stop bits must be 1 or 2, got %d", ErrInvalidConfig, s.StopBits)
	}

	return &serial.Mode{
		BaudRate: s.Speed,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: stopBits,
	}, nil
}

// Validate performs final checks on a merged configuration.
func Validate(cfg MergedConfig) error {
	if cfg.Rzsz == "" {
		return fmt.Errorf("%w: rzsz executable is not set", ErrInvalidConfig)
	}
	if _, err := cfg.Serial.Mode(); err != nil {
		return err
	}
	switch cfg.Link.Provider {
	case "socat":
		if len(cfg.Link.Command) == 0 {
			return fmt.Errorf("%w: link command is empty", ErrInvalidConfig)
		}
	case "static":
		if len(cfg.Link.Endpoints) != 2 {
			return fmt.Errorf("%w: static link needs exactly 2 endpoints", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown link provider %q", ErrInvalidConfig, cfg.Link.Provider)
	}
	if cfg.Link.Wait <= 0 {
		return fmt.Errorf("%w: link wait must be positive", ErrInvalidConfig)
	}
	if cfg.Timing.Settle < 0 || cfg.Timing.ReadyTimeout < 0 || cfg.Timing.ReceiveTimeout < 0 {
		return fmt.Errorf("%w: timings must not be negative", ErrInvalidConfig)
	}

	switch cfg.Comparator.Kind {
	case "bytes":
	case "diff":
		if len(cfg.Comparator.Command) == 0 {
			return fmt.Errorf("%w: diff comparator needs a command", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown comparator %q", ErrInvalidConfig, cfg.Comparator.Kind)
	}

	if cfg.Matrix == "" && len(cfg.Scenarios) == 0 {
		return fmt.Errorf("%w: no matrix selected and no scenarios defined", ErrInvalidConfig)
	}

	return nil
}
