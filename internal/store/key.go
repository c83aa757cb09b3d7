package store

import (
	"fmt"
	"path"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/humam/internal/param"
)

// Stage names a pipeline stage.
type Stage string

const (
	StageNetwork    Stage = "network"
	StageSimulation Stage = "simulation"
	StageAnalysis   Stage = "analysis"
)

// ParseStage validates a stage name.
func ParseStage(s string) (Stage, error) {
	switch Stage(s) {
	case StageNetwork, StageSimulation, StageAnalysis:
		return Stage(s), nil
	}
	return "", fmt.Errorf("unknown stage %q", s)
}

// Depth is the number of hashes in a key of this stage.
func (s Stage) Depth() int {
	switch s {
	case StageNetwork:
		return 1
	case StageSimulation:
		return 2
	case StageAnalysis:
		return 3
	}
	return 0
}

// Key is the path of hashes from the store root to an artifact.
type Key struct {
	Network    param.Identifier
	Simulation param.Identifier
	Analysis   param.Identifier
}

// NetworkKey returns the key of a network artifact.
func NetworkKey(network param.Identifier) Key {
	return Key{Network: network}
}

// Child returns the key of a downstream artifact under k.
func (k Key) Child(h param.Identifier) Key {
	switch {
	case k.Simulation == "":
		k.Simulation = h
	default:
		k.Analysis = h
	}
	return k
}

// Stage returns the stage of the artifact k points to.
func (k Key) Stage() Stage {
	switch {
	case k.Analysis != "":
		return StageAnalysis
	case k.Simulation != "":
		return StageSimulation
	default:
		return StageNetwork
	}
}

// Hash returns the last hash of the path.
func (k Key) Hash() param.Identifier {
	switch k.Stage() {
	case StageAnalysis:
		return k.Analysis
	case StageSimulation:
		return k.Simulation
	default:
		return k.Network
	}
}

// Parent returns the key of the upstream artifact. The parent of a network
// key is the zero Key.
func (k Key) Parent() Key {
	switch k.Stage() {
	case StageAnalysis:
		k.Analysis = ""
	case StageSimulation:
		k.Simulation = ""
	default:
		k = Key{}
	}
	return k
}

// Segments returns the hashes from the root.
func (k Key) Segments() []string {
	segs := []string{string(k.Network), string(k.Simulation), string(k.Analysis)}
	return segs[:k.Stage().Depth()]
}

func (k Key) String() string {
	return strings.Join(k.Segments(), "/")
}

// Validate checks every segment is a well-formed identifier.
func (k Key) Validate() error {
	if k.Analysis != "" && k.Simulation == "" {
		return fmt.Errorf("invalid key %q: analysis without simulation", k)
	}
	for _, s := range k.Segments() {
		if _, err := param.ParseIdentifier(s); err != nil {
			return fmt.Errorf("invalid key %q: %w", k, err)
		}
	}
	return nil
}

// Files maps slash-separated relative file names to their contents.
type Files map[string][]byte

// Names returns the file names in sorted order.
func (f Files) Names() []string {
	names := make([]string, 0, len(f))
	for n := range f {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Size returns the total number of bytes.
func (f Files) Size() int64 {
	var n int64
	for _, b := range f {
		n += int64(len(b))
	}
	return n
}

var hashName = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Validate checks that f is non-empty and that every name is a clean
// relative path which cannot collide with child artifacts or store
// bookkeeping files.
func (f Files) Validate() error {
	if len(f) == 0 {
		return fmt.Errorf("artifact has no files")
	}
	for name := range f {
		if name == "" || path.IsAbs(name) || path.Clean(name) != name || strings.HasPrefix(name, "../") || name == ".." {
			return fmt.Errorf("invalid file name %q", name)
		}
		top, _, _ := strings.Cut(name, "/")
		if strings.HasPrefix(top, ".") || hashName.MatchString(top) {
			return fmt.Errorf("reserved file name %q", name)
		}
	}
	return nil
}
