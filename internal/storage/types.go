package storage

// Document is the raw persisted payload with its revision counter.
// Revision starts at 1 for the first write and increases by one per write.
type Document struct {
	Data     []byte
	Revision uint64
}
