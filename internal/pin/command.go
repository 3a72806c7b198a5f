// Package pin implements the GPIO toggle protocol: one ASCII datagram
// `GPIO<n>=<0|1>` per command, no framing, no acknowledgement.
package pin

import (
	"net"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

const (
	DefaultPin      = 4
	DefaultPeerIP   = "192.168.89.46"
	DefaultPeerPort = 10001

	// Longest valid datagram is "GPIO255=1".
	MaxDatagram = 16

	prefix = "GPIO"
)

var DefaultPeer = net.JoinHostPort(DefaultPeerIP, strconv.Itoa(DefaultPeerPort))

type Command struct {
	Pin   uint8
	Level bool
}

func (c Command) String() string {
	return string(c.Bytes())
}

// Bytes returns wire form, e.g. "GPIO4=1" (7 bytes).
func (c Command) Bytes() []byte {
	b := make([]byte, 0, MaxDatagram)
	b = append(b, prefix...)
	b = strconv.AppendUint(b, uint64(c.Pin), 10)
	b = append(b, '=')
	if c.Level {
		return append(b, '1')
	}
	return append(b, '0')
}

// ParseInput maps user input exactly "1"/"0" to command for given pin.
// Anything else, including surrounding whitespace, is NotValid error and must not be transmitted.
func ParseInput(pin uint8, input string) (Command, error) {
	switch input {
	case "1":
		return Command{Pin: pin, Level: true}, nil
	case "0":
		return Command{Pin: pin, Level: false}, nil
	}
	return Command{}, errors.NotValidf("input '%s'", input)
}

// ParseDatagram is strict: exactly `GPIO<n>=<0|1>`, no whitespace.
func ParseDatagram(b []byte) (Command, error) {
	s := string(b)
	if len(b) > MaxDatagram || !strings.HasPrefix(s, prefix) {
		return Command{}, errors.NotValidf("datagram '%s'", s)
	}
	eq := strings.IndexByte(s, '=')
	if eq <= len(prefix) || eq != len(s)-2 {
		return Command{}, errors.NotValidf("datagram '%s'", s)
	}
	n, err := strconv.ParseUint(s[len(prefix):eq], 10, 8)
	if err != nil {
		return Command{}, errors.NewNotValid(err, "datagram pin")
	}
	c := Command{Pin: uint8(n)}
	switch s[eq+1] {
	case '1':
		c.Level = true
	case '0':
	default:
		return Command{}, errors.NotValidf("datagram '%s' level", s)
	}
	return c, nil
}
