// Support sub-commands in espctl application.
// It's simple but fine so far.
package subcmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"

	"github.com/coreos/go-systemd/daemon"
	"github.com/iotlab/espctl/internal/state"
	"github.com/juju/errors"
)

type Mod struct {
	Name  string
	Usage string
	// Flags registers sub-command flags, values override config.
	Flags func(fs *flag.FlagSet, config *state.Config)
	Main  func(ctx context.Context, config *state.Config) error
}

func Parse(command string, modules []Mod) (*Mod, error) {
	if command == "" {
		return nil, fmt.Errorf("empty command")
	}

	var found *Mod
	for i := range modules {
		m := &modules[i]
		if m.Name == "" {
			panic(fmt.Sprintf("code error Name='' module=%#v", m))
		}
		if command == m.Name {
			found = m
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("unknown command='%s'", command)
	}
	return found, nil
}

// ParseFlags applies command line args on top of config.
func (m *Mod) ParseFlags(args []string, config *state.Config, output io.Writer) error {
	fs := flag.NewFlagSet(m.Name, flag.ContinueOnError)
	fs.SetOutput(output)
	if m.Flags != nil {
		m.Flags(fs, config)
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		err := errors.NotValidf("%s unexpected arguments %s", m.Name, strings.Join(fs.Args(), " "))
		fmt.Fprintf(output, "error: %v\n", err)
		return err
	}
	return nil
}

func Usage(w io.Writer, modules []Mod) {
	names := make([]string, 0, len(modules))
	usage := make(map[string]string, len(modules))
	for _, m := range modules {
		names = append(names, m.Name)
		usage[m.Name] = m.Usage
	}
	sort.Strings(names)
	fmt.Fprintf(w, "commands:\n")
	for _, name := range names {
		fmt.Fprintf(w, "  %-8s %s\n", name, usage[name])
	}
}

func SdNotify(s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		log.Fatal("sdnotify: ", errors.ErrorStack(err))
	}
	return ok
}
