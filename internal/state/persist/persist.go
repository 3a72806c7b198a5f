// Package persist binds encoding.Binary{M,Unm}arshaler state to crash safe storage.
package persist

import (
	"encoding"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/iotlab/espctl/log2"
	"github.com/juju/errors"
	"github.com/temoto/extremofile"
)

type Stater interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type storage interface {
	Read() ([]byte, error)
	io.Writer
}

type Persist struct {
	sync.Mutex
	log     *log2.Log
	tag     string
	target  Stater
	storage storage
}

// Init with root="" disables storage, Load and Store become no-op.
func (p *Persist) Init(tag string, target Stater, root string, log *log2.Log) error {
	if target == nil {
		return errors.Errorf("code error persist %s target=nil", tag)
	}
	p.tag = tag
	p.log = log
	p.target = target
	if root == "" {
		p.log.Debugf("persist %s disabled", p.tag)
		return nil
	}
	p.storage = extremofile.New(extremofile.Config{
		Dir:      filepath.Join(root, tag),
		DirPerm:  0755,
		FilePerm: 0644,
	})
	return nil
}

func (p *Persist) Enabled() bool { return p.storage != nil }

func (p *Persist) Load() error {
	if p.tag == "" {
		return errors.Errorf("code error persist must call .Init() first")
	}
	if p.storage == nil {
		return nil
	}
	p.Lock()
	defer p.Unlock()
	tbegin := time.Now()
	b, err := p.storage.Read()
	p.log.Debugf("persist %s storage.read duration=%v", p.tag, time.Since(tbegin))
	if b != nil {
		if err != nil {
			p.log.Errorf("persist %s ignore non-critical storage err=%v", p.tag, err)
		}
		err = p.target.UnmarshalBinary(b)
	}
	return errors.Annotatef(err, "persist %s Load", p.tag)
}

func (p *Persist) Store() error {
	if p.tag == "" {
		return errors.Errorf("code error persist must call .Init() first")
	}
	if p.storage == nil {
		return nil
	}
	p.Lock()
	defer p.Unlock()
	b, err := p.target.MarshalBinary()
	if err == nil {
		tbegin := time.Now()
		_, err = p.storage.Write(b)
		p.log.Debugf("persist %s storage.write duration=%v", p.tag, time.Since(tbegin))
	}
	return errors.Annotatef(err, "persist %s Store", p.tag)
}
