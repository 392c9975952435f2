package sim

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// IDGenerator can generate IDs
type IDGenerator interface {
	// Generate an ID
	Generate() string
}

var (
	idGeneratorOnce sync.Once
	idGenerator     IDGenerator
)

// GetIDGenerator returns the ID generator used in the current simulation. IDs
// are a process-wide counter, so reruns with the same seed produce the same
// IDs.
func GetIDGenerator() IDGenerator {
	idGeneratorOnce.Do(func() {
		idGenerator = &sequentialIDGenerator{}
	})

	return idGenerator
}

type sequentialIDGenerator struct {
	nextID atomic.Uint64
}

func (g *sequentialIDGenerator) Generate() string {
	return strconv.FormatUint(g.nextID.Add(1), 10)
}
