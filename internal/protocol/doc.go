// Package protocol owns the canonical node contract.
//
// Ownership boundary:
// - version-independent track, load result, and player shapes
// - request descriptors handed to drivers
// - normalized inbound frames
// - shared sentinel errors
//
// Wire-version translation lives in subpackages (lavalink3).
package protocol
