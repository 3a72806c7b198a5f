package state

import (
	"path/filepath"
	"strconv"
	"sync"

	"github.com/hashicorp/hcl"
	"github.com/iotlab/espctl/helpers"
	"github.com/iotlab/espctl/internal/ota"
	"github.com/iotlab/espctl/internal/pin"
	"github.com/iotlab/espctl/internal/tele"
	"github.com/iotlab/espctl/log2"
	"github.com/juju/errors"
)

const DefaultConfigFile = "espctl.hcl"

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	LogLevel string `hcl:"log_level"`

	Toggle struct {
		Peer      string `hcl:"peer"`
		// nil means pin.DefaultPin, 0 is valid GPIO
		Pin       *int   `hcl:"pin"`
		PauseMs   int    `hcl:"pause_ms"`
		Broadcast bool   `hcl:"broadcast"`
		// empty: stdin, otherwise /dev/input/eventN keyboard
		Input string `hcl:"input"`
	} `hcl:"toggle"`

	Ota struct {
		Listen       string `hcl:"listen"`
		TlsCert      string `hcl:"tls_cert"`
		TlsKey       string `hcl:"tls_key"`
		VersionFile  string `hcl:"version_file"`
		FirmwareFile string `hcl:"firmware_file"`
		// nil means default on
		Debug     *bool  `hcl:"debug"`
		QR        bool   `hcl:"qr"`
		PublicURL string `hcl:"public_url"`
	} `hcl:"ota"`

	Pind struct {
		Listen      string `hcl:"listen"`
		Pins        []int  `hcl:"pins"`
		GpioDriver  string `hcl:"gpio_driver"`
		GpioChip    string `hcl:"gpio_chip"`
		ActiveLow   bool   `hcl:"active_low"`
		PersistRoot string `hcl:"persist_root"`
	} `hcl:"pind"`

	Fetch struct {
		URL         string `hcl:"url"`
		TlsCaFile   string `hcl:"tls_ca_file"`
		TlsInsecure bool   `hcl:"tls_insecure"`
		Output      string `hcl:"output"`
		TimeoutSec  int    `hcl:"timeout_sec"`
	} `hcl:"fetch"`

	Tele tele.Config `hcl:"tele"`

	_copy_guard sync.Mutex //nolint:unused
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

func (c *Config) OtaDebug() bool { return c.Ota.Debug == nil || *c.Ota.Debug }

func (c *Config) TogglePin() uint8 {
	if c.Toggle.Pin == nil {
		return pin.DefaultPin
	}
	return uint8(*c.Toggle.Pin)
}

func (c *Config) CheckTogglePin() error {
	if p := c.Toggle.Pin; p != nil && (*p < 0 || *p > 255) {
		return errors.NotValidf("config toggle.pin=%d", *p)
	}
	return nil
}

// PindPins returns nil when every pin is allowed.
func (c *Config) PindPins() ([]uint8, error) {
	if len(c.Pind.Pins) == 0 {
		return nil, nil
	}
	pins := make([]uint8, 0, len(c.Pind.Pins))
	for _, p := range c.Pind.Pins {
		if p < 0 || p > 255 {
			return nil, errors.NotValidf("config pind.pins=%d", p)
		}
		pins = append(pins, uint8(p))
	}
	return pins, nil
}

func (c *Config) applyDefaults() error {
	if c.Toggle.Peer == "" {
		c.Toggle.Peer = pin.DefaultPeer
	}
	if c.Toggle.Pin == nil {
		p := pin.DefaultPin
		c.Toggle.Pin = &p
	} else if err := c.CheckTogglePin(); err != nil {
		return err
	}
	if c.Toggle.PauseMs < 0 {
		return errors.NotValidf("config toggle.pause_ms=%d", c.Toggle.PauseMs)
	}

	if c.Ota.Listen == "" {
		c.Ota.Listen = ota.DefaultListen
	}
	if c.Ota.TlsCert == "" {
		c.Ota.TlsCert = ota.DefaultTLSCert
	}
	if c.Ota.TlsKey == "" {
		c.Ota.TlsKey = ota.DefaultTLSKey
	}
	if c.Ota.VersionFile == "" {
		c.Ota.VersionFile = ota.DefaultVersionFile
	}
	if c.Ota.FirmwareFile == "" {
		c.Ota.FirmwareFile = ota.DefaultFirmwareFile
	}

	if c.Pind.Listen == "" {
		c.Pind.Listen = ":" + strconv.Itoa(pin.DefaultPeerPort)
	}
	if c.Pind.GpioDriver == "" {
		c.Pind.GpioDriver = pin.DriverLog
	}
	switch c.Pind.GpioDriver {
	case pin.DriverCdev, pin.DriverPeriph, pin.DriverLog:
	default:
		return errors.NotValidf("config pind.gpio_driver=%s", c.Pind.GpioDriver)
	}
	if _, err := c.PindPins(); err != nil {
		return err
	}

	if c.Fetch.URL == "" {
		c.Fetch.URL = "https://localhost" + c.Ota.Listen
	}
	if c.Fetch.Output == "" {
		c.Fetch.Output = filepath.Base(ota.DefaultFirmwareFile)
	}

	if c.LogLevel != "" {
		if _, ok := log2.ParseLevel(c.LogLevel); !ok {
			return errors.NotValidf("config log_level=%s", c.LogLevel)
		}
	}
	return nil
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s", source.Name)
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// ReadConfig reads sources in order, later values override earlier.
// Defaults are applied after all sources.
func ReadConfig(log *log2.Log, fs FullReader, sources ...ConfigSource) (*Config, error) {
	if osfs, ok := fs.(*OsFullReader); ok && len(sources) != 0 {
		dir, name := filepath.Split(sources[0].Name)
		osfs.SetBase(dir)
		sources[0].Name = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, source := range sources {
		c.read(log, fs, source, &errs)
	}
	if err := c.applyDefaults(); err != nil {
		errs = append(errs, err)
	}
	return c, helpers.FoldErrors(errs)
}

// ConfigFromFlag maps -config value to source: empty means optional default file.
func ConfigFromFlag(name string) ConfigSource {
	if name == "" {
		return ConfigSource{Name: DefaultConfigFile, Optional: true}
	}
	return ConfigSource{Name: name}
}

func MustReadConfig(log *log2.Log, fs FullReader, sources ...ConfigSource) *Config {
	c, err := ReadConfig(log, fs, sources...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
