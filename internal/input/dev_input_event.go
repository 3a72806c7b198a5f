// Package input reads toggle keystrokes from Linux /dev/input/event* keyboards.
package input

import (
	"io"
	"os"
	"strconv"

	"github.com/juju/errors"
	"github.com/temoto/inputevent-go"
)

const DevInputEventTag = "dev-input-event"

// linux/input-event-codes.h
const (
	evKey    = 0x01
	key1     = 2
	key0     = 11
	keyKP1   = 79
	keyKP0   = 82
	keyEnter = 28
)

// DevInputEventSource yields one "line" per key press.
// Digit keys 0 and 1 (main row or keypad) map to "0" and "1",
// any other key maps to "key<code>". Enter is ignored.
type DevInputEventSource struct {
	f io.ReadCloser
}

func (self *DevInputEventSource) String() string { return DevInputEventTag }

func NewDevInputEventSource(device string) (*DevInputEventSource, error) {
	f, err := os.Open(device)
	if err != nil {
		return nil, errors.Annotatef(err, "%s open device=%s", DevInputEventTag, device)
	}
	return &DevInputEventSource{f: f}, nil
}

func NewReaderSource(r io.ReadCloser) *DevInputEventSource { return &DevInputEventSource{f: r} }

func (self *DevInputEventSource) ReadLine() (string, error) {
	for {
		ie, err := inputevent.ReadOne(self.f)
		if err != nil {
			return "", err
		}
		if ie.Type != evKey || ie.Value != int32(inputevent.KeyStateDown) {
			continue
		}
		switch ie.Code {
		case key0, keyKP0:
			return "0", nil
		case key1, keyKP1:
			return "1", nil
		case keyEnter:
			continue
		}
		return "key" + strconv.Itoa(int(ie.Code)), nil
	}
}

func (self *DevInputEventSource) Close() error { return self.f.Close() }
