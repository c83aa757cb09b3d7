package testutil

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/humam/internal/store"
)

// AssertTables compares the named artifact files against
// testdata/golden/<name>.golden. Each file is preceded by a "# <file>" line.
//
// To regenerate golden files, run:
//
//	go test ./internal/... -update
func AssertTables(t *testing.T, name string, files store.Files, names ...string) {
	t.Helper()
	var buf bytes.Buffer
	for _, n := range names {
		data, ok := files[n]
		if !ok {
			t.Fatalf("golden %s: no file %s", name, n)
		}
		buf.WriteString("# " + n + "\n")
		buf.Write(data)
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, buf.Bytes())
}
