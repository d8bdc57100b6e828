//go:build amd64 && linux

package redefine

import "golang.org/x/sys/unix"

// Keep copies in the low 2GB, next to the text segment, so relative calls
// reach their targets without trampolines.
const map32bit = unix.MAP_32BIT
