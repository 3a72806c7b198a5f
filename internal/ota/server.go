// Package ota serves firmware images to devices doing HTTPS OTA update.
package ota

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iotlab/espctl/log2"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/atomic_clock"
)

const (
	DefaultListen  = ":5000"
	DefaultTLSCert = "ca_cert.pem"
	DefaultTLSKey  = "ca_key.pem"

	Greeting            = "Hello World!"
	ContentTypeText     = "text/plain; charset=utf-8"
	ContentTypeFirmware = "application/octet-stream"

	PathRoot     = "/"
	PathVersion  = "/version"
	PathFirmware = "/firmware.bin"

	shutdownTimeout = 5 * time.Second
)

type ServerOptions struct {
	Log    *log2.Log
	Listen string
	// TLS overrides TLSCert/TLSKey files when set.
	TLS          *tls.Config
	TLSCert      string
	TLSKey       string
	VersionFile  string
	FirmwareFile string
	// Debug logs every request.
	Debug bool
}

type Server struct {
	alive *alive.Alive
	log   *log2.Log
	opt   ServerOptions

	mu   sync.Mutex
	hs   *http.Server
	addr net.Addr

	stat struct {
		requests  uint32
		errors    uint32
		downloads uint32
		last      atomic_clock.Clock
	}
}

func NewServer(opt ServerOptions) *Server {
	if opt.Listen == "" {
		opt.Listen = DefaultListen
	}
	if opt.VersionFile == "" {
		opt.VersionFile = DefaultVersionFile
	}
	if opt.FirmwareFile == "" {
		opt.FirmwareFile = DefaultFirmwareFile
	}
	return &Server{
		alive: alive.NewAlive(),
		log:   opt.Log,
		opt:   opt,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET "+PathVersion, s.handleVersion)
	mux.HandleFunc("GET "+PathFirmware, s.handleFirmware)
	if s.opt.Debug {
		return s.debugHandler(mux)
	}
	return mux
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	atomic.AddUint32(&s.stat.requests, 1)
	w.Header().Set("Content-Type", ContentTypeText)
	_, _ = io.WriteString(w, Greeting)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	atomic.AddUint32(&s.stat.requests, 1)
	v, err := ReadVersion(s.opt.VersionFile)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", ContentTypeText)
	_, _ = io.WriteString(w, v)
}

func (s *Server) handleFirmware(w http.ResponseWriter, r *http.Request) {
	atomic.AddUint32(&s.stat.requests, 1)
	b, err := ReadFirmware(s.opt.FirmwareFile)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", ContentTypeFirmware)
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	if _, err = w.Write(b); err != nil {
		s.log.Errorf("ota %s remote=%s write err=%v", r.URL.Path, r.RemoteAddr, err)
		return
	}
	atomic.AddUint32(&s.stat.downloads, 1)
	s.stat.last.SetNow()
	s.log.Infof("ota firmware sent remote=%s size=%d", r.RemoteAddr, len(b))
}

// fail hides error details from client, they go to log.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	atomic.AddUint32(&s.stat.errors, 1)
	s.log.Errorf("ota %s remote=%s err=%v", r.URL.Path, r.RemoteAddr, err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

type statusWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

func (s *Server) debugHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tbegin := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		if sw.status == 0 {
			sw.status = http.StatusOK
		}
		s.log.Debugf("ota %s %s remote=%s status=%d size=%d duration=%v",
			r.Method, r.URL.Path, r.RemoteAddr, sw.status, sw.size, time.Since(tbegin))
	})
}

func (s *Server) tlsConfig() (*tls.Config, error) {
	if s.opt.TLS != nil {
		return s.opt.TLS, nil
	}
	cert, err := tls.LoadX509KeyPair(s.opt.TLSCert, s.opt.TLSKey)
	if err != nil {
		return nil, errors.Annotatef(err, "ota tls cert=%s key=%s", s.opt.TLSCert, s.opt.TLSKey)
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}, nil
}

// ListenAndServeTLS blocks until ctx is done, Stop() is called or listener fails.
func (s *Server) ListenAndServeTLS(ctx context.Context, onListen func(net.Addr)) error {
	tlsConfig, err := s.tlsConfig()
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", s.opt.Listen)
	if err != nil {
		return errors.Annotatef(err, "ota listen=%s", s.opt.Listen)
	}
	if onListen != nil {
		onListen(ln.Addr())
	}
	return s.Serve(ctx, tls.NewListener(ln, tlsConfig))
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if !s.alive.Add(1) {
		ln.Close()
		return errors.Errorf("ota server stopped")
	}
	defer s.alive.Done()

	hs := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.hs = hs
	s.addr = ln.Addr()
	s.mu.Unlock()
	s.log.Infof("ota listening on https://%s", ln.Addr())

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		select {
		case <-ctx.Done():
			s.alive.Stop()
		case <-s.alive.StopChan():
		}
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := hs.Shutdown(sctx); err != nil {
			s.log.Errorf("ota shutdown err=%v", err)
		}
	}()

	err := hs.Serve(ln)
	s.alive.Stop()
	<-shutdownDone
	if err == http.ErrServerClosed {
		return nil
	}
	return errors.Annotate(err, "ota serve")
}

func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop begins graceful shutdown, Wait() blocks until done.
func (s *Server) Stop() { s.alive.Stop() }
func (s *Server) Wait() { s.alive.Wait() }

type Stat struct {
	Requests  uint32
	Errors    uint32
	Downloads uint32
	// since last successful firmware download, 0 if none
	SinceDownload time.Duration
}

func (s Stat) String() string {
	return fmt.Sprintf("requests=%d errors=%d downloads=%d since_download=%v",
		s.Requests, s.Errors, s.Downloads, s.SinceDownload)
}

func (s *Server) Stat() Stat {
	st := Stat{
		Requests:  atomic.LoadUint32(&s.stat.requests),
		Errors:    atomic.LoadUint32(&s.stat.errors),
		Downloads: atomic.LoadUint32(&s.stat.downloads),
	}
	if !s.stat.last.IsZero() {
		st.SinceDownload = atomic_clock.Since(&s.stat.last)
	}
	return st
}
