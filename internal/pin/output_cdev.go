package pin

import (
	"sync"

	"github.com/iotlab/espctl/helpers"
	"github.com/juju/errors"
	gpio "github.com/temoto/gpio-cdev-go"
)

const DefaultChip = "/dev/gpiochip0"

// Linux GPIO character device output. Lines are requested lazily,
// on first Set of each pin, and held until Close.
type cdevOutput struct {
	sync.Mutex
	chip      gpio.Chiper
	consumer  string
	activeLow bool
	lines     map[uint8]cdevLine
}

type cdevLine struct {
	lines gpio.Lineser
	set   gpio.LineSetFunc
}

func OpenCdevOutput(chipPath, consumer string, activeLow bool) (Output, error) {
	if chipPath == "" {
		chipPath = DefaultChip
	}
	chip, err := gpio.Open(chipPath, consumer)
	if err != nil {
		return nil, errors.Annotatef(err, "gpio open chip=%s", chipPath)
	}
	return NewCdevOutput(chip, consumer, activeLow), nil
}

func NewCdevOutput(chip gpio.Chiper, consumer string, activeLow bool) Output {
	return &cdevOutput{
		chip:      chip,
		consumer:  consumer,
		activeLow: activeLow,
		lines:     make(map[uint8]cdevLine),
	}
}

func (o *cdevOutput) Set(pin uint8, level bool) error {
	o.Lock()
	defer o.Unlock()
	l, ok := o.lines[pin]
	if !ok {
		flag := gpio.GPIOHANDLE_REQUEST_OUTPUT
		if o.activeLow {
			flag |= gpio.GPIOHANDLE_REQUEST_ACTIVE_LOW
		}
		lines, err := o.chip.OpenLines(flag, o.consumer, uint32(pin))
		if err != nil {
			return errors.Annotatef(err, "gpio open line=%d", pin)
		}
		l = cdevLine{lines: lines, set: lines.SetFunc(uint32(pin))}
		o.lines[pin] = l
	}
	var b byte
	if level {
		b = 1
	}
	l.set(b)
	return errors.Annotatef(l.lines.Flush(), "gpio flush line=%d", pin)
}

func (o *cdevOutput) Close() error {
	o.Lock()
	defer o.Unlock()
	errs := make([]error, 0, len(o.lines)+1)
	for pin, l := range o.lines {
		if err := l.lines.Close(); err != nil {
			errs = append(errs, errors.Annotatef(err, "gpio close line=%d", pin))
		}
		delete(o.lines, pin)
	}
	if err := o.chip.Close(); err != nil {
		errs = append(errs, err)
	}
	return helpers.FoldErrors(errs)
}
