package cmd

import (
	"github.com/spf13/cobra"

	"github.com/sarchlab/wifictl/shm"
)

// channelFlags are the shared-memory parameters both processes must agree on.
type channelFlags struct {
	creator          bool
	handleFinish     bool
	memoryKey        uint32
	segmentName      string
	simToControlName string
	controlToSimName string
	lockableName     string
	dir              string
}

func addChannelFlags(cmd *cobra.Command, c *channelFlags, creator bool) {
	def := shm.DefaultConfig()

	f := cmd.Flags()
	f.BoolVar(&c.creator, "creator", creator,
		"Create the shared region instead of attaching to it")
	f.BoolVar(&c.handleFinish, "handle-finish", def.HandleFinish,
		"Let the control process observe the end of the simulation")
	f.Uint32Var(&c.memoryKey, "memory-key", def.MemoryKey,
		"Key of the shared region")
	f.StringVar(&c.segmentName, "segment-name", def.SegmentName,
		"Name of the shared segment")
	f.StringVar(&c.simToControlName, "sim-to-control-name",
		def.SimToControlName, "Name of the simulation-to-control channel")
	f.StringVar(&c.controlToSimName, "control-to-sim-name",
		def.ControlToSimName, "Name of the control-to-simulation channel")
	f.StringVar(&c.lockableName, "lockable-name", def.LockableName,
		"Name of the lockable")
	f.StringVar(&c.dir, "shm-dir", "",
		"Directory of the shared region (default /dev/shm or the temp dir)")
}

func (c channelFlags) config() shm.Config {
	return shm.Config{
		IsMemoryCreator:  c.creator,
		HandleFinish:     c.handleFinish,
		MemoryKey:        c.memoryKey,
		SegmentName:      c.segmentName,
		SimToControlName: c.simToControlName,
		ControlToSimName: c.controlToSimName,
		LockableName:     c.lockableName,
		Dir:              c.dir,
	}
}

// args renders the flags for a child process that attaches to the region.
func (c channelFlags) attachArgs() []string {
	return []string{
		"--creator=false",
		"--handle-finish=" + formatBool(c.handleFinish),
		"--memory-key=" + formatUint(uint64(c.memoryKey)),
		"--segment-name=" + c.segmentName,
		"--sim-to-control-name=" + c.simToControlName,
		"--control-to-sim-name=" + c.controlToSimName,
		"--lockable-name=" + c.lockableName,
		"--shm-dir=" + c.dir,
	}
}
