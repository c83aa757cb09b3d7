package param

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
)

// Domain prefixes for content-addressed identity.
// The version suffix enables future algorithm migration.
const (
	DomainNetwork    = "humam/network/v1"
	DomainSimulation = "humam/simulation/v1"
	DomainAnalysis   = "humam/analysis/v1"
	DomainInput      = "humam/input/v1"
)

// Identifier is a content-addressed hash: 64 lowercase hex characters.
type Identifier string

// String returns the identifier text.
func (id Identifier) String() string {
	return string(id)
}

// Short returns the first 12 characters, for log output.
func (id Identifier) Short() string {
	if len(id) <= 12 {
		return string(id)
	}
	return string(id[:12])
}

var identifierPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ParseIdentifier validates s as an Identifier.
func ParseIdentifier(s string) (Identifier, error) {
	if !identifierPattern.MatchString(s) {
		return "", fmt.Errorf("invalid identifier %q: expected 64 lowercase hex characters", s)
	}
	return Identifier(s), nil
}

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null byte prevents domain/data
// boundary ambiguity.
func hashWithDomain(domain string, data []byte) Identifier {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return Identifier(hex.EncodeToString(h.Sum(nil)))
}

// Hash computes the identifier of tree under the given domain.
// The result is stable across processes and independent of map insertion order.
func Hash(domain string, tree Value) (Identifier, error) {
	canonical, err := MarshalCanonical(tree)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// MustHash is like Hash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustHash(domain string, tree Value) Identifier {
	id, err := Hash(domain, tree)
	if err != nil {
		panic(err)
	}
	return id
}

// HashReader computes the identifier of the raw bytes read from r, for input
// files whose content (not path) determines identity.
func HashReader(r io.Reader) (Identifier, error) {
	h := sha256.New()
	h.Write([]byte(DomainInput))
	h.Write([]byte{0x00})
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hash input: %w", err)
	}
	return Identifier(hex.EncodeToString(h.Sum(nil))), nil
}

// SimulationTree builds the tree that identifies a simulation of a network.
func SimulationTree(network Identifier, sim Object) Object {
	return Object{
		"network":    String(network),
		"simulation": sim,
	}
}

// AnalysisTree builds the tree that identifies an analysis of a simulation.
func AnalysisTree(simulation Identifier, analysis Object) Object {
	return Object{
		"simulation": String(simulation),
		"analysis":   analysis,
	}
}
