package sim

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
)

var idGeneratorOnce sync.Once
var idGenerator IDGenerator

// IDGenerator can generate IDs
type IDGenerator interface {
	// Generate an ID
	Generate() string
}

// GetIDGenerator returns the ID generator used in the current simulation.
// Event IDs are sequential so that two runs with the same seed produce the
// same event stream.
func GetIDGenerator() IDGenerator {
	idGeneratorOnce.Do(func() {
		idGenerator = &sequentialIDGenerator{}
	})

	return idGenerator
}

type sequentialIDGenerator struct {
	nextID uint64
}

func (g *sequentialIDGenerator) Generate() string {
	idNumber := atomic.AddUint64(&g.nextID, 1)
	return strconv.FormatUint(idNumber, 10)
}

// NewRunID returns a globally unique, sortable identifier for one run.
func NewRunID() string {
	return xid.New().String()
}
