package pin

import (
	"io"
	"sync"

	"github.com/iotlab/espctl/log2"
	"github.com/juju/errors"
)

const (
	DriverCdev   = "cdev"
	DriverPeriph = "periph"
	DriverLog    = "log"
)

type Output interface {
	io.Closer
	Set(pin uint8, level bool) error
}

type OutputOptions struct {
	Driver    string
	Chip      string // cdev only
	Consumer  string // cdev only
	ActiveLow bool
	Log       *log2.Log
}

func OpenOutput(opt OutputOptions) (Output, error) {
	switch opt.Driver {
	case DriverCdev:
		return OpenCdevOutput(opt.Chip, opt.Consumer, opt.ActiveLow)
	case DriverPeriph:
		return OpenPeriphOutput(opt.ActiveLow)
	case DriverLog, "":
		return NewLogOutput(opt.Log), nil
	}
	return nil, errors.NotSupportedf("gpio driver=%s", opt.Driver)
}

// LogOutput drives no hardware, only logs and remembers levels.
type LogOutput struct {
	mu     sync.Mutex
	log    *log2.Log
	levels map[uint8]bool
}

func NewLogOutput(log *log2.Log) *LogOutput {
	return &LogOutput{log: log, levels: make(map[uint8]bool)}
}

func (o *LogOutput) Set(pin uint8, level bool) error {
	o.mu.Lock()
	o.levels[pin] = level
	o.mu.Unlock()
	o.log.Infof("pin: GPIO%d level=%t", pin, level)
	return nil
}

func (o *LogOutput) Level(pin uint8) (level bool, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	level, ok = o.levels[pin]
	return
}

func (o *LogOutput) Close() error { return nil }
