// Package cli runs line oriented interactive loops:
// go-prompt on a terminal, plain line reading otherwise.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/mattn/go-isatty"
)

// Executor handles one input line. Returned error stops the loop.
type Executor func(ctx context.Context, line string) error

type LineReader interface {
	// ReadLine returns io.EOF when input is exhausted.
	ReadLine() (string, error)
}

type Options struct {
	Tag     string
	Prefix  string
	Suggest []prompt.Suggest
	In      *os.File  // default os.Stdin
	Out     io.Writer // default os.Stdout
}

// MainLoop reads lines until EOF, interrupt signal or executor error.
// Interrupt is clean exit and returns nil.
func MainLoop(ctx context.Context, opt Options, exec Executor) error {
	if opt.In == nil {
		opt.In = os.Stdin
	}
	if opt.Out == nil {
		opt.Out = os.Stdout
	}
	ctx, cancel := WithSignals(ctx)
	defer cancel()

	if isatty.IsTerminal(opt.In.Fd()) {
		return runPrompt(ctx, opt, exec)
	}
	return RunReader(ctx, NewLineReader(opt.In), opt.Out, opt.Prefix, exec)
}

// WithSignals returns context canceled by SIGINT, SIGTERM, SIGHUP or SIGQUIT.
func WithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	go func() {
		select {
		case <-signalCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signalCh)
	}()
	return ctx, cancel
}

func runPrompt(ctx context.Context, opt Options, exec Executor) error {
	var mu sync.Mutex
	var execErr error
	interrupted := false
	executor := func(line string) {
		if err := exec(ctx, line); err != nil {
			mu.Lock()
			execErr = err
			mu.Unlock()
		}
	}
	completer := func(d prompt.Document) []prompt.Suggest {
		return prompt.FilterHasPrefix(opt.Suggest, d.GetWordBeforeCursor(), true)
	}
	exitChecker := func(in string, breakline bool) bool {
		mu.Lock()
		defer mu.Unlock()
		return interrupted || execErr != nil || ctx.Err() != nil
	}
	p := prompt.New(executor, completer,
		prompt.OptionTitle(opt.Tag),
		prompt.OptionPrefix(opt.Prefix),
		prompt.OptionAddKeyBind(prompt.KeyBind{
			Key: prompt.ControlC,
			Fn: func(*prompt.Buffer) {
				mu.Lock()
				interrupted = true
				mu.Unlock()
			},
		}),
		prompt.OptionSetExitCheckerOnInput(exitChecker),
	)
	p.Run()
	mu.Lock()
	defer mu.Unlock()
	return execErr
}

// RunReader is non-interactive loop, used for pipes and input devices.
// Prefix is written before each line like a prompt.
func RunReader(ctx context.Context, r LineReader, w io.Writer, prefix string, exec Executor) error {
	type result struct {
		line string
		err  error
	}
	next := make(chan struct{})
	lines := make(chan result)
	go func() {
		for range next {
			line, err := r.ReadLine()
			select {
			case lines <- result{line, err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	defer close(next)

	for {
		if prefix != "" {
			fmt.Fprint(w, prefix)
		}
		select {
		case next <- struct{}{}:
		case <-ctx.Done():
			fmt.Fprintln(w)
			return nil
		}
		var res result
		select {
		case res = <-lines:
		case <-ctx.Done():
			fmt.Fprintln(w)
			return nil
		}
		if res.err == io.EOF {
			fmt.Fprintln(w)
			return nil
		}
		if res.err != nil {
			return errors.Annotate(res.err, "read input")
		}
		if err := exec(ctx, res.line); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

type lineReader struct{ r *bufio.Reader }

func NewLineReader(r io.Reader) LineReader { return lineReader{bufio.NewReader(r)} }

// ReadLine strips only line terminator "\n" or "\r\n", other whitespace is kept.
// Last line without terminator is still returned.
func (lr lineReader) ReadLine() (string, error) {
	s, err := lr.r.ReadString('\n')
	if err == io.EOF && s != "" {
		return s, nil
	}
	if err != nil {
		return "", err
	}
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r"), nil
}
