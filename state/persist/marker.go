package persist

import (
	"io/ioutil"
	"os"
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/temoto/ks0066/log2"
)

// State of one-time hardware setup.
type State uint8

const (
	Uninitialized State = iota
	Initialized
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	}
	return "invalid"
}

var (
	blobInitialized   = []byte("OK")
	blobUninitialized = []byte("-")
)

// MarshalBinary never returns empty blob, extremofile treats it as corrupted.
func (s State) MarshalBinary() ([]byte, error) {
	switch s {
	case Initialized:
		return blobInitialized, nil
	case Uninitialized:
		return blobUninitialized, nil
	}
	return nil, errors.NotValidf("marker state=%d", s)
}

func (s *State) UnmarshalBinary(b []byte) error {
	switch string(b) {
	case string(blobInitialized):
		*s = Initialized
	case string(blobUninitialized):
		*s = Uninitialized
	default:
		return errors.NotValidf("marker content=%q", b)
	}
	return nil
}

// Marker is a durable two state flag shared by all processes using same storage.
// Load-then-Store is not atomic.
type Marker interface {
	Load() (State, error)
	Store(State) error
}

const DefaultMarkerPath = "/tmp/ks0066_init"

// FileMarker is Initialized when file at Path exists, whatever it contains.
type FileMarker struct{ Path string }

func NewFileMarker(path string) *FileMarker {
	if path == "" {
		path = DefaultMarkerPath
	}
	return &FileMarker{Path: path}
}

func (self *FileMarker) Load() (State, error) {
	_, err := os.Stat(self.Path)
	switch {
	case err == nil:
		return Initialized, nil
	case os.IsNotExist(err):
		return Uninitialized, nil
	}
	return Uninitialized, errors.Annotatef(err, "marker path=%s", self.Path)
}

func (self *FileMarker) Store(s State) error {
	var err error
	switch s {
	case Initialized:
		err = ioutil.WriteFile(self.Path, blobInitialized, 0644)
	case Uninitialized:
		if err = os.Remove(self.Path); os.IsNotExist(err) {
			err = nil
		}
	default:
		return errors.NotValidf("marker state=%d", s)
	}
	return errors.Annotatef(err, "marker path=%s store=%s", self.Path, s)
}

const ExtremoMarkerTag = "ks0066-bootstrap"

// ExtremoMarker survives power loss in the middle of write, at cost of a directory
// with main and backup files under root.
type ExtremoMarker struct {
	p     Persist
	state State
}

func NewExtremoMarker(root string, log *log2.Log) (*ExtremoMarker, error) {
	m := &ExtremoMarker{}
	if err := m.p.Init(ExtremoMarkerTag, &m.state, root, log); err != nil {
		return nil, err
	}
	return m, nil
}

func (self *ExtremoMarker) Load() (State, error) {
	self.state = Uninitialized
	err := self.p.Load()
	return self.state, err
}

func (self *ExtremoMarker) Store(s State) error {
	if s != Initialized && s != Uninitialized {
		return errors.NotValidf("marker state=%d", s)
	}
	self.state = s
	return self.p.Store()
}

// MemoryMarker lives as long as the value, share one between devices to simulate restarts.
type MemoryMarker struct{ v uint32 }

func (self *MemoryMarker) Load() (State, error) {
	return State(atomic.LoadUint32(&self.v)), nil
}

func (self *MemoryMarker) Store(s State) error {
	atomic.StoreUint32(&self.v, uint32(s))
	return nil
}
