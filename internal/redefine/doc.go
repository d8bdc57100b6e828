// Package redefine replaces Go functions at runtime and keeps the replaced
// code callable.
//
// Func overwrites the entry of a function with a jump to a replacement. The
// jump loads the replacement's closure context first, so method values and
// closures work as replacements. Before the first patch the original machine
// code is copied into an executable arena and relative addresses are fixed up;
// Original returns a func backed by that copy.
//
// Limitations:
//   - Patching and copying only work on amd64 (Unix and Windows). Elsewhere
//     Func and Original report ErrUnsupported. Bounds works everywhere.
//   - Inlined call sites are not affected. Mark targets //go:noinline.
//   - The copy of the original has no entry in the runtime's function table.
//     It must not grow the stack or block, so keep patched targets small
//     and //go:nosplit when the original will be called.
//   - Patching is not atomic with respect to goroutines executing the target.
package redefine
