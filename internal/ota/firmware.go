package ota

import (
	"bufio"
	"io"
	"io/ioutil"
	"os"

	"github.com/juju/errors"
)

const (
	DefaultVersionFile  = "versioning"
	DefaultFirmwareFile = ".pio/build/esp-wrover-kit/firmware.bin"
)

// ReadVersion returns first line of file with its newline, if any.
// File is opened and closed on each call.
func ReadVersion(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Annotatef(err, "version file=%s", path)
	}
	defer f.Close()
	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", errors.Annotatef(err, "version file=%s", path)
	}
	return line, nil
}

// ReadFirmware returns whole file content.
func ReadFirmware(path string) ([]byte, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Annotatef(err, "firmware file=%s", path)
	}
	return b, nil
}
