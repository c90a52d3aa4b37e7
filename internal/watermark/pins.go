package watermark

import (
	"time"

	"codeberg.org/mutker/soilctl/internal/errors"
)

// handle owns the control lines for the lifetime of a Sequencer. Every pin
// mutation goes through it.
type handle struct {
	pins  Pins
	delay func(time.Duration)
}

func (h *handle) write(line Line, level Level) error {
	if err := h.pins.Write(line, level); err != nil {
		return errors.New().Wrap(ErrHardwareAccess, err).WithData(struct {
			Line  string
			Level Level
			Error string
		}{line.String(), level, err.Error()})
	}
	return nil
}

// selectChannel enables the multiplexer and routes it to addr.
func (h *handle) selectChannel(addr Address) error {
	if err := h.write(LineMuxEnable, Low); err != nil {
		return err
	}
	for i, line := range selectLines {
		if err := h.write(line, addr.Level(i)); err != nil {
			return err
		}
	}
	return nil
}

func (h *handle) disableMux() error {
	return h.write(LineMuxEnable, High)
}

// excite drives one excitation line high with the other held low, waits the
// short settle in place and takes one conversion before releasing the line.
func (h *handle) excite(on, off Line, settle time.Duration) (int, error) {
	if err := h.write(off, Low); err != nil {
		return 0, err
	}
	if err := h.write(on, High); err != nil {
		return 0, err
	}

	h.delay(settle)

	raw, readErr := h.pins.ReadAnalog()
	if err := h.write(on, Low); err != nil {
		return 0, err
	}
	if readErr != nil {
		return 0, errors.New().Wrap(ErrHardwareAccess, readErr)
	}

	return raw, nil
}

// safe disables the multiplexer and drops both excitation lines. All three
// writes are attempted even if one fails.
func (h *handle) safe() error {
	var first error
	for _, w := range []struct {
		line  Line
		level Level
	}{
		{LineMuxEnable, High},
		{LineExciteA, Low},
		{LineExciteB, Low},
	} {
		if err := h.write(w.line, w.level); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// idle puts every line in its resting level: select lines at channel 0,
// excitation off, multiplexer disabled.
func (h *handle) idle() error {
	for _, line := range selectLines {
		if err := h.write(line, Low); err != nil {
			return err
		}
	}
	return h.safe()
}
