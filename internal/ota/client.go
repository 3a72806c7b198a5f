package ota

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/juju/errors"
)

const DefaultFetchTimeout = 60 * time.Second

// Client does what ESP32 OTA task does: check version, download image.
type Client struct {
	base string
	hc   *http.Client
}

func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), hc: hc}
}

// NewTLSClient trusts certificates from caFile, or any certificate with insecure=true.
func NewTLSClient(baseURL, caFile string, insecure bool, timeout time.Duration) (*Client, error) {
	tlsconf := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: insecure, //nolint:gosec
	}
	if caFile != "" {
		cabytes, err := ioutil.ReadFile(caFile)
		if err != nil {
			return nil, errors.Annotatef(err, "ota tls ca=%s", caFile)
		}
		tlsconf.RootCAs = x509.NewCertPool()
		if !tlsconf.RootCAs.AppendCertsFromPEM(cabytes) {
			return nil, errors.NotValidf("ota tls ca=%s no certificates", caFile)
		}
	}
	if timeout == 0 {
		timeout = DefaultFetchTimeout
	}
	hc := &http.Client{
		Timeout:   timeout,
		Transport: &http.Transport{TLSClientConfig: tlsconf},
	}
	return NewClient(baseURL, hc), nil
}

func (c *Client) Version(ctx context.Context) (string, error) {
	resp, err := c.get(ctx, PathVersion)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Annotate(err, "ota version read")
	}
	return string(b), nil
}

// Firmware copies image into w, returns byte count.
func (c *Client) Firmware(ctx context.Context, w io.Writer) (int64, error) {
	resp, err := c.get(ctx, PathFirmware)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != ContentTypeFirmware {
		return 0, errors.NotValidf("ota firmware content-type=%s", ct)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, errors.Annotate(err, "ota firmware read")
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return n, errors.Errorf("ota firmware short read n=%d expected=%d", n, resp.ContentLength)
	}
	return n, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, errors.Annotatef(err, "ota request path=%s", path)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, errors.Annotatef(err, "ota GET %s", path)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, errors.Errorf("ota GET %s status=%s", path, resp.Status)
	}
	return resp, nil
}
