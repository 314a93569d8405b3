package storage

// Interface conformance checks.
var (
	_ Store = (*DB)(nil)
	_ Store = (*MemoryStore)(nil)
)
