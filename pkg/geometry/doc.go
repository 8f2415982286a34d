// Package geometry defines the cell/universe hierarchy of the transport
// geometry and the Registry that owns it. A Registry is populated once,
// single-threaded, then sealed; after sealing every object reachable from it
// is read-only and may be shared by any number of tracking goroutines.
package geometry
