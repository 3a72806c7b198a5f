package pin

import (
	"strconv"
	"sync"

	"github.com/juju/errors"
	periph_gpio "periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

// periph.io output, pins are addressed by registry name "GPIO<n>".
type periphOutput struct {
	sync.Mutex
	activeLow bool
	byName    func(string) periph_gpio.PinIO
	pins      map[uint8]periph_gpio.PinIO
}

func OpenPeriphOutput(activeLow bool) (Output, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Annotate(err, "periph host init")
	}
	return newPeriphOutput(gpioreg.ByName, activeLow), nil
}

func newPeriphOutput(byName func(string) periph_gpio.PinIO, activeLow bool) *periphOutput {
	return &periphOutput{
		activeLow: activeLow,
		byName:    byName,
		pins:      make(map[uint8]periph_gpio.PinIO),
	}
}

func (o *periphOutput) Set(pin uint8, level bool) error {
	o.Lock()
	defer o.Unlock()
	p, ok := o.pins[pin]
	if !ok {
		name := "GPIO" + strconv.Itoa(int(pin))
		if p = o.byName(name); p == nil {
			return errors.NotFoundf("periph pin=%s", name)
		}
		o.pins[pin] = p
	}
	l := periph_gpio.Level(level != o.activeLow)
	return errors.Annotatef(p.Out(l), "periph pin=%s out", p.Name())
}

func (o *periphOutput) Close() error {
	o.Lock()
	defer o.Unlock()
	// lines keep last level
	o.pins = make(map[uint8]periph_gpio.PinIO)
	return nil
}
