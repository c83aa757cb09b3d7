// Package store persists stage artifacts under content-addressed keys.
//
// Artifacts live in a tree of hashes rooted at the store directory:
//
//	<root>/<network>/                       network artifact
//	<root>/<network>/<simulation>/          simulation artifact
//	<root>/<network>/<simulation>/<analysis>/
//
// # Guarantees
//
//   - Write is atomic: files go to a temporary sibling directory that is
//     renamed into place. Readers never observe a partial artifact.
//   - Write never overwrites: if the target exists the first writer wins.
//   - Lock serializes computation per key across processes using O_EXCL
//     lock files. Stale locks are broken after StaleAfter.
//
// The run Registry (SQLite, registry.db) records which runs produced or
// loaded which hash. Recording is the commit point of a stage.
package store
