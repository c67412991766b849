package store

// Stores is the top-level container for all storage backends.
type Stores struct {
	Buffer BufferStore
}

// StoreConfig selects and configures the storage backend.
type StoreConfig struct {
	PostgresDSN string // managed mode; empty selects SQLite
	SQLitePath  string // standalone mode database file
}

// Close releases every backend held by the container.
func (s *Stores) Close() error {
	if s == nil || s.Buffer == nil {
		return nil
	}
	return s.Buffer.Close()
}
