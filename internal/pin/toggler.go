package pin

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/iotlab/espctl/helpers"
	"github.com/juju/errors"
)

const (
	Prompt       = "Turn on/off the LED (0/1):"
	DefaultPause = time.Second
)

// Toggler turns one line of user input into at most one datagram.
// User facing messages go to Out, diagnostics go to Sender log.
type Toggler struct {
	Sender *Sender
	Pin    uint8
	Pause  time.Duration
	Out    io.Writer
}

// Execute returns error only for transmission failure,
// invalid input is reported to Out and nothing is sent.
func (t *Toggler) Execute(ctx context.Context, line string) error {
	c, err := ParseInput(t.Pin, line)
	if err != nil {
		if errors.IsNotValid(err) {
			fmt.Fprintf(t.Out, "Invalid input %s!\n", line)
			return nil
		}
		return errors.Trace(err)
	}
	if err = t.Sender.Send(ctx, c); err != nil {
		return err
	}
	fmt.Fprintf(t.Out, "Message sent: %s\n", c)
	helpers.SleepContext(ctx, t.Pause)
	return nil
}
