// Package param provides the parameter tree and its content-addressed identity.
//
// A parameter tree is an arbitrarily nested mapping of primitive values, arrays
// and sub-mappings that fully defines one pipeline stage. It is represented by
// the sealed Value interface (String, Int, Float, Bool, Array, Object) rather
// than by map[string]any, so that serialization order and number handling are
// explicit.
//
// Key design constraints:
//   - null is not a parameter value; decoders reject it
//   - object keys are serialized in RFC 8785 order (UTF-16 code units)
//   - numbers compare by value: Int(1) and Float(1.0) serialize identically
//   - NaN and infinities are rejected
//   - identifiers are SHA-256 with a per-stage domain prefix
//
// param imports nothing internal except fault.
package param
