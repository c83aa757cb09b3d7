package param

// Version constants for the parameter tree and artifact layout.
const (
	// LayoutVersion is the on-disk artifact layout version.
	// Bump together with the Domain* constants when files change shape.
	LayoutVersion = "1"

	// ToolVersion is the humam release version.
	ToolVersion = "0.1.0"
)
