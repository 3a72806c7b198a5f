package ota

import (
	"io"
	"net"
	"strings"

	"github.com/juju/errors"
	"github.com/skip2/go-qrcode"
)

// FirmwareURL is what a device should be configured with.
// Empty host in listen address is replaced with first non-loopback IPv4.
func FirmwareURL(publicURL, listen string) string {
	if publicURL != "" {
		return strings.TrimRight(publicURL, "/") + PathFirmware
	}
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		host, port = "", strings.TrimPrefix(listen, ":")
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = outboundIPv4()
	}
	return "https://" + net.JoinHostPort(host, port) + PathFirmware
}

func outboundIPv4() string {
	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, a := range addrs {
			if ipn, ok := a.(*net.IPNet); ok && !ipn.IP.IsLoopback() && ipn.IP.To4() != nil {
				return ipn.IP.String()
			}
		}
	}
	return "localhost"
}

// WriteQR renders text as terminal QR code, two columns per module.
// Light modules are drawn as blocks, for dark terminal background.
func WriteQR(w io.Writer, text string) error {
	qr, err := qrcode.New(text, qrcode.Medium)
	if err != nil {
		return errors.Annotate(err, "QR")
	}
	var sb strings.Builder
	for _, row := range qr.Bitmap() {
		for _, dark := range row {
			if dark {
				sb.WriteString("  ")
			} else {
				sb.WriteString("\u2588\u2588")
			}
		}
		sb.WriteByte('\n')
	}
	_, err = io.WriteString(w, sb.String())
	return errors.Trace(err)
}
