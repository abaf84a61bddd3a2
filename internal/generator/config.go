package generator

// Config drives the synthetic graph generator.
type Config struct {
	NumPersons int
	// KnowsPerPerson is the mean number of outgoing KNOWS edges per person.
	KnowsPerPerson float64
	// ChunkSize caps how many rows one UNWIND statement carries.
	ChunkSize int
	Seed      int64
}

// DefaultConfig returns baseline settings for a small demo graph.
func DefaultConfig() Config {
	return Config{
		NumPersons:     100,
		KnowsPerPerson: 3,
		ChunkSize:      500,
		Seed:           42,
	}
}
