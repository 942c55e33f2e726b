package httpapi

// DefaultMaxBodyBytes bounds request bodies when Config.MaxBodyBytes is unset.
const DefaultMaxBodyBytes int64 = 1 << 20

// Config defines HTTP API settings.
type Config struct {
	Addr         string
	BasePath     string
	MaxBodyBytes int64
	// WhistleEnabled exposes /api/whistle; it answers 404 otherwise.
	WhistleEnabled bool
}
