package state

import (
	"path/filepath"
	"sync"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/ks0066/hardware/ks0066"
	"github.com/temoto/ks0066/helpers"
	"github.com/temoto/ks0066/internal/tele"
	"github.com/temoto/ks0066/log2"
)

const (
	DriverSysfs  = "sysfs"
	DriverCdev   = "cdev"
	DriverPeriph = "periph"
	DriverSim    = "sim"

	MarkerFile         = "file"
	MarkerExtremo      = "extremofile"
	MarkerMemory       = "memory"
	DefaultPersistRoot = "/var/lib/ks0066"
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	Hardware struct {
		KS0066 struct { //nolint:maligned
			Driver      string           `hcl:"driver"`
			SysfsRoot   string           `hcl:"sysfs_root"`
			PinChip     string           `hcl:"pin_chip"`
			Pinmap      ks0066.PinConfig `hcl:"pinmap"`
			BestEffort  bool             `hcl:"best_effort"`
			ForceInit   bool             `hcl:"force_init"`
			LogDebug    bool             `hcl:"log_debug"`
			Codepage    string           `hcl:"codepage"`
			ScrollDelay int              `hcl:"scroll_delay"`
			Width       int              `hcl:"width"`
		} `hcl:"ks0066"`
	}

	Persist struct {
		Root       string `hcl:"root"`
		Marker     string `hcl:"marker"`
		MarkerPath string `hcl:"marker_path"`
	}
	Tele tele.Config

	_copy_guard sync.Mutex //nolint:unused
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
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
		err = errors.Annotatef(err, "config unmarshal source=%s content='%s'", source.Name, string(bs))
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

// Validate fills defaults and checks values hcl can not.
func (c *Config) Validate() error {
	hw := &c.Hardware.KS0066
	switch hw.Driver {
	case "":
		hw.Driver = DriverSysfs
	case DriverSysfs, DriverCdev, DriverPeriph, DriverSim:
	default:
		return errors.NotValidf("config hardware.ks0066.driver=%s valid: sysfs, cdev, periph, sim", hw.Driver)
	}
	if hw.Driver == DriverCdev && hw.PinChip == "" {
		return errors.NotValidf("config hardware.ks0066.pin_chip=empty with driver=cdev")
	}
	if _, err := hw.Pinmap.PinMap(); err != nil {
		return errors.Annotate(err, "config hardware.ks0066.pinmap")
	}
	if hw.ScrollDelay < 0 {
		return errors.NotValidf("config hardware.ks0066.scroll_delay=%d", hw.ScrollDelay)
	}
	if hw.Width < 0 || hw.Width > ks0066.MaxChars {
		return errors.NotValidf("config hardware.ks0066.width=%d expected 0..%d", hw.Width, ks0066.MaxChars)
	}

	switch c.Persist.Marker {
	case "":
		c.Persist.Marker = MarkerFile
	case MarkerFile, MarkerExtremo, MarkerMemory:
	default:
		return errors.NotValidf("config persist.marker=%s valid: file, extremofile, memory", c.Persist.Marker)
	}
	if c.Persist.Root == "" {
		c.Persist.Root = DefaultPersistRoot
	}
	if c.Tele.Enable && c.Tele.QueuePath == "" {
		c.Tele.QueuePath = filepath.Join(c.Persist.Root, "tele-queue")
	}
	return nil
}

func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		log.Fatal("code error [Must]ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	if len(errs) == 0 {
		if err := c.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
