//go:build amd64 && unix && !linux

package redefine

// Only Linux (and FreeBSD, where the Go port does not expose it) has
// MAP_32BIT. Far calls fall back to trampolines.
const map32bit = 0
