package ventro

import (
	"log/slog"

	"github.com/NeoOne601/Ventro/internal/config"
	"github.com/NeoOne601/Ventro/internal/llm"
	"github.com/NeoOne601/Ventro/internal/pipeline"
	"github.com/NeoOne601/Ventro/internal/search"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	logger      *slog.Logger
	version     string
	cfg         *config.Config
	databaseURL string
	providers   []llm.Provider
	documents   pipeline.DocumentStore
	chunks      search.ChunkStore
	skipDB      bool
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithConfig supplies a pre-loaded configuration instead of reading the
// environment.
func WithConfig(cfg config.Config) Option {
	return func(o *resolvedOptions) { o.cfg = &cfg }
}

// WithDatabaseURL overrides the database connection string (DATABASE_URL).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithProviders replaces the config-driven LLM provider chain. The
// deterministic terminal is still appended by the router.
func WithProviders(providers ...llm.Provider) Option {
	return func(o *resolvedOptions) { o.providers = providers }
}

// WithDocumentStore replaces the Postgres-backed parsed-document store.
func WithDocumentStore(store pipeline.DocumentStore) Option {
	return func(o *resolvedOptions) { o.documents = store }
}

// WithChunkStore replaces the Qdrant chunk store.
func WithChunkStore(store search.ChunkStore) Option {
	return func(o *resolvedOptions) { o.chunks = store }
}

// WithoutPersistence runs the App with no database: sessions, divergence
// records and workpapers are not persisted, and the duplicate-invoice
// probe is skipped. Requires WithDocumentStore. Intended for embedding and
// tests.
func WithoutPersistence() Option {
	return func(o *resolvedOptions) { o.skipDB = true }
}
