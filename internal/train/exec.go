package train

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ironsheep/vessel-seg/internal/logging"
)

// ErrUnsupportedDevice is returned for any device other than "cpu".
var ErrUnsupportedDevice = errors.New("train: unsupported device")

// Exec is the execution context passed to training and evaluation. It
// replaces process-wide device and seed state.
type Exec struct {
	// Device selects where arithmetic runs. Only "cpu" is available.
	Device string

	// Seed drives fold shuffling, weight initialisation and batch order.
	Seed int64

	// Workers bounds concurrent feature extraction.
	Workers int

	Log zerolog.Logger
}

// DefaultExec returns a CPU context with seed 0, one worker per CPU and a
// disabled logger.
func DefaultExec() Exec {
	return Exec{
		Device:  "cpu",
		Workers: runtime.NumCPU(),
		Log:     logging.Nop(),
	}
}

// Validate checks the device.
func (e Exec) Validate() error {
	switch strings.ToLower(e.Device) {
	case "", "cpu":
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedDevice, e.Device)
}

func (e Exec) workers() int {
	if e.Workers < 1 {
		return 1
	}
	return e.Workers
}
