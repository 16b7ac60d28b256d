// Package kvstore defines the abstract idempotent key-value contract
// spec.md §6 requires of the persistence engine: a single logical table
// topics(topic PRIMARY KEY, latest_message), upsert on write,
// point-lookup on read. Any storage engine supporting those two
// operations satisfies the contract; sqlitekv and memkv are the two
// adapters shipped here.
package kvstore

// Store is the durable "have we seen this?" oracle for gossip dedup
// (spec.md §4.3) and the authoritative mirror of the in-memory topic
// store.
type Store interface {
	// Upsert writes the row (topic, message), replacing any prior value
	// for that topic (last-writer-wins).
	Upsert(topic, message string) error

	// Lookup returns the latest message stored for topic, and whether
	// a row exists at all.
	Lookup(topic string) (message string, ok bool, err error)

	// Close releases resources held by the store.
	Close() error
}
