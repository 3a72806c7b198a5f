package pin

import (
	"bytes"
	"sort"
	"sync"

	"github.com/juju/errors"
)

// State is last applied level per pin.
// Binary form is wire commands separated by newline, so persisted file is human readable.
type State struct {
	mu     sync.Mutex
	levels map[uint8]bool
}

func NewState() *State { return &State{levels: make(map[uint8]bool)} }

func (s *State) Set(c Command) {
	s.mu.Lock()
	s.levels[c.Pin] = c.Level
	s.mu.Unlock()
}

func (s *State) Get(pin uint8) (level bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	level, ok = s.levels[pin]
	return
}

// Commands sorted by pin.
func (s *State) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := make([]Command, 0, len(s.levels))
	for p, l := range s.levels {
		cs = append(cs, Command{Pin: p, Level: l})
	}
	sort.Slice(cs, func(i, j int) bool { return cs[i].Pin < cs[j].Pin })
	return cs
}

func (s *State) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	for _, c := range s.Commands() {
		buf.Write(c.Bytes())
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func (s *State) UnmarshalBinary(b []byte) error {
	levels := make(map[uint8]bool)
	for _, line := range bytes.Split(b, []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		c, err := ParseDatagram(line)
		if err != nil {
			return errors.Annotate(err, "pin state")
		}
		levels[c.Pin] = c.Level
	}
	s.mu.Lock()
	s.levels = levels
	s.mu.Unlock()
	return nil
}
