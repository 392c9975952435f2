package shm

import (
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
)

// Config holds the construction parameters of a shared region.
type Config struct {
	// IsMemoryCreator tells whether this process creates the region. Exactly
	// one of the two processes must be the creator.
	IsMemoryCreator bool

	// UseVector asks for batched exchanges. Only scalar mode is supported.
	UseVector bool

	// HandleFinish lets the controller observe the simulation's finished
	// flag while waiting for a message.
	HandleFinish bool

	MemoryKey        uint32
	SegmentName      string
	SimToControlName string
	ControlToSimName string
	LockableName     string

	// Dir overrides the directory holding the backing file. Empty selects
	// /dev/shm when available and the system temporary directory otherwise.
	Dir string
}

// DefaultConfig returns the configuration used by both wifictl processes
// unless overridden.
func DefaultConfig() Config {
	return Config{
		IsMemoryCreator:  false,
		UseVector:        false,
		HandleFinish:     true,
		MemoryKey:        1234,
		SegmentName:      "My Seg",
		SimToControlName: "My Cpp to Python Msg",
		ControlToSimName: "My Python to Cpp Msg",
		LockableName:     "My Lockable",
	}
}

// Validate checks that the configuration can be used to build a channel.
func (c Config) Validate() error {
	if c.UseVector {
		return ErrVectorModeUnsupported
	}

	names := map[string]string{
		"segment name":        c.SegmentName,
		"sim-to-control name": c.SimToControlName,
		"control-to-sim name": c.ControlToSimName,
		"lockable name":       c.LockableName,
	}
	for what, name := range names {
		if name == "" {
			return fmt.Errorf("shm: %s must not be empty", what)
		}
	}

	if c.SimToControlName == c.ControlToSimName ||
		c.SimToControlName == c.LockableName ||
		c.ControlToSimName == c.LockableName {
		return errors.New("shm: channel and lockable names must be distinct")
	}

	return nil
}

// Path returns the backing file of the region.
func (c Config) Path() string {
	dir := c.Dir
	if dir == "" {
		dir = defaultDir()
	}

	name := strings.ReplaceAll(c.SegmentName, " ", "_")
	name = strings.ReplaceAll(name, string(filepath.Separator), "_")

	return filepath.Join(dir, fmt.Sprintf("%s-%d", name, c.MemoryKey))
}

// addressing hashes the channel names so that both sides can verify they
// talk over the same pair of channels.
func (c Config) addressing() uint32 {
	h := fnv.New32a()
	h.Write([]byte(c.SimToControlName))
	h.Write([]byte{0})
	h.Write([]byte(c.ControlToSimName))
	h.Write([]byte{0})
	h.Write([]byte(c.LockableName))

	return h.Sum32()
}

func defaultDir() string {
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return "/dev/shm"
	}

	return os.TempDir()
}
