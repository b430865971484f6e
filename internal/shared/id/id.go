// Package id generates the identifiers that scope one scatter-gather round.
//
// Every round gets a RunID (a prefixed ULID). All named external state of
// the round (the runtime directory, the gate, the shared region, the socket
// endpoint) is derived from it, so two concurrent runs never share a name
// and a crashed run never blocks the next one.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RunID identifies one scatter-gather round.
type RunID string

// RunPrefix prefixes every RunID.
const RunPrefix = "run"

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewRunID generates a new run identifier.
func NewRunID() RunID {
	return RunID(Default().GenerateWithPrefix(RunPrefix))
}

func (r RunID) String() string { return string(r) }

// Short returns the last eight characters of the ULID, for log fields and
// names with tight length limits.
func (r RunID) Short() string {
	s := string(r)
	if len(s) <= 8 {
		return s
	}
	return strings.ToLower(s[len(s)-8:])
}
