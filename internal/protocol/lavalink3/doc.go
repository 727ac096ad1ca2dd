// Package lavalink3 translates between the v3 node wire shapes and the
// canonical protocol model.
//
// Everything here is pure: no I/O, no shared state. Drivers call
// ConvertRequest on outgoing bodies and ConvertLoadResult, ConvertPlayer, and
// NormalizeFrame on what comes back.
//
// The v3 wire never carries artworkUrl or pluginInfo. Rebuilt tracks leave
// both nil and callers must tolerate that.
package lavalink3

// Prefix is the path segment every v3 endpoint lives under.
const Prefix = "v3"
