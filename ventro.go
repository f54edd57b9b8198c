// Package ventro is the public API for embedding the three-way
// reconciliation pipeline.
//
// Consumers construct an App and drive sessions through it:
//
//	app, err := ventro.New(
//	    ventro.WithLogger(logger),
//	    ventro.WithVersion(version),
//	)
//	if err != nil { ... }
//	defer app.Close()
//
//	sub := app.Subscribe(sessionID)
//	result, err := app.Run(ctx, ventro.RunRequest{ ... })
//
// The import graph enforces a strict no-cycle rule: ventro (root) imports
// internal/*, but internal/* never imports ventro.
package ventro

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/NeoOne601/Ventro/internal/config"
	"github.com/NeoOne601/Ventro/internal/llm"
	"github.com/NeoOne601/Ventro/internal/model"
	"github.com/NeoOne601/Ventro/internal/pipeline"
	"github.com/NeoOne601/Ventro/internal/progress"
	"github.com/NeoOne601/Ventro/internal/search"
	"github.com/NeoOne601/Ventro/internal/storage"
	"github.com/NeoOne601/Ventro/internal/threshold"
	"github.com/NeoOne601/Ventro/migrations"
)

// Curated re-exports so embedding consumers can use the pipeline's result
// types without reaching into internal packages.
type (
	Verdict       = model.Verdict
	Workpaper     = model.Workpaper
	Session       = model.Session
	SessionStatus = model.SessionStatus
	Event         = model.Event
	Subscription  = progress.Subscription
)

// RunRequest identifies one reconciliation to execute.
type RunRequest struct {
	SessionID uuid.UUID // zero value: a new id is assigned
	TenantID  uuid.UUID
	POID      string
	GRNID     string
	InvoiceID string
}

// RunResult is the outcome of a completed (or terminally failed) session.
type RunResult struct {
	SessionID uuid.UUID
	Status    SessionStatus
	Verdict   *Verdict
	Workpaper *Workpaper
}

// App is the reconciliation service lifecycle. Construct with New().
type App struct {
	cfg        config.Config
	logger     *slog.Logger
	db         *storage.DB
	bus        *progress.Bus
	pipeline   *pipeline.Pipeline
	thresholds *threshold.Store
	qdrant     *search.QdrantStore
	keepAlive  context.CancelFunc
}

// New wires the App from configuration plus options.
func New(opts ...Option) (*App, error) {
	o := &resolvedOptions{
		logger:  slog.Default(),
		version: "dev",
	}
	for _, opt := range opts {
		opt(o)
	}

	var cfg config.Config
	if o.cfg != nil {
		cfg = *o.cfg
	} else {
		loaded, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("ventro: load config: %w", err)
		}
		cfg = loaded
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}

	app := &App{cfg: cfg, logger: o.logger}
	app.bus = progress.NewBus(o.logger)

	ctx := context.Background()

	if !o.skipDB {
		db, err := storage.New(ctx, cfg.DatabaseURL, o.logger)
		if err != nil {
			return nil, fmt.Errorf("ventro: storage: %w", err)
		}
		if err := db.RunMigrations(ctx, migrations.FS); err != nil {
			db.Close()
			return nil, fmt.Errorf("ventro: migrations: %w", err)
		}
		app.db = db
	} else if o.documents == nil {
		return nil, fmt.Errorf("ventro: WithoutPersistence requires WithDocumentStore")
	}

	providers := o.providers
	if providers == nil {
		providers = buildProviders(cfg, o.logger)
	}
	router := llm.NewRouter(llm.RouterConfig{
		Providers:       providers,
		Dims:            cfg.VectorDims,
		MaxConcurrent:   int64(cfg.MaxConcurrent),
		ProviderTimeout: cfg.ProviderTimeout,
		MaxRetries:      cfg.MaxRetries,
	}, o.logger)

	chunks := o.chunks
	if chunks == nil && cfg.QdrantURL != "" {
		qdrant, err := search.NewQdrantStore(search.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
		}, routerEmbedder{router}, o.logger)
		if err != nil {
			app.closePartial()
			return nil, fmt.Errorf("ventro: qdrant: %w", err)
		}
		app.qdrant = qdrant
		chunks = qdrant
		o.logger.Info("chunk store: qdrant", "collection", cfg.QdrantCollection)
	}
	if chunks == nil {
		// Extraction then works from the parsed documents directly.
		chunks = noChunks{}
		o.logger.Info("chunk store: disabled (no QDRANT_URL)")
	}

	var feedback threshold.FeedbackStore = emptyFeedback{}
	var history pipeline.InvoiceHistory
	documents := o.documents
	if app.db != nil {
		feedback = app.db
		history = app.db
		if documents == nil {
			documents = app.db
		}
	}
	if documents == nil {
		return nil, fmt.Errorf("ventro: no document store available")
	}

	app.thresholds = threshold.New(feedback, o.logger)
	app.pipeline = pipeline.New(documents, chunks, router, app.bus, app.thresholds, history,
		pipeline.Config{
			StageTimeout:           cfg.StageTimeout,
			DivergenceTimeout:      cfg.DivergenceTimeout,
			SuppressDegradedAlerts: cfg.SuppressDegradedAlerts,
		}, o.logger)

	kaCtx, cancel := context.WithCancel(context.Background())
	app.keepAlive = cancel
	go app.bus.StartKeepAlive(kaCtx)

	return app, nil
}

// Run executes one reconciliation session to its terminal status,
// persisting the session record, divergence audit trail and workpaper.
func (a *App) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	sessionID := req.SessionID
	if sessionID == uuid.Nil {
		sessionID = uuid.New()
	}

	if a.db != nil {
		if _, err := a.db.CreateSession(ctx, sessionID, req.TenantID, req.POID, req.GRNID, req.InvoiceID); err != nil {
			return RunResult{}, err
		}
		if err := a.db.MarkSessionProcessing(ctx, sessionID); err != nil {
			return RunResult{}, err
		}
	}

	result, runErr := a.pipeline.Run(ctx, sessionID, req.TenantID, req.POID, req.GRNID, req.InvoiceID)
	state := result.State

	a.persist(sessionID, req.TenantID, result)

	out := RunResult{
		SessionID: sessionID,
		Status:    result.Status,
		Verdict:   state.Verdict,
		Workpaper: state.Workpaper,
	}
	if runErr != nil {
		return out, fmt.Errorf("ventro: run session %s: %w", sessionID, runErr)
	}
	return out, nil
}

// persist writes the terminal session record, divergence record and
// workpaper. Persistence failures are logged, not returned: the verdict
// already exists and the caller holds it.
func (a *App) persist(sessionID, tenantID uuid.UUID, result pipeline.Result) {
	if a.db == nil {
		return
	}
	// Detached context: persistence must survive caller cancellation.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	state := result.State

	invoiceNumber := ""
	if inv, ok := state.Extracted[model.KindInvoice]; ok {
		invoiceNumber = inv.DocumentNumber
	}
	if err := a.db.CompleteSession(ctx, sessionID, result.Status, state.Verdict, state.Trace, state.Errors, invoiceNumber); err != nil {
		a.logger.Error("persist session failed", "session_id", sessionID, "error", err)
	}

	if d := state.Divergence; d != nil {
		rec := model.DivergenceRecord{
			SessionID:      sessionID,
			TenantID:       tenantID,
			PrimarySummary: d.PrimarySummary,
			ShadowSummary:  d.ShadowSummary,
			Similarity:     d.Similarity,
			ThresholdUsed:  d.Threshold,
			AlertTriggered: d.AlertTriggered,
			Degraded:       d.Degraded,
			Perturbations:  d.Perturbations,
			PrimaryVector:  d.PrimaryVector,
			ShadowVector:   d.ShadowVector,
			CreatedAt:      time.Now().UTC(),
		}
		if err := a.db.SaveDivergenceRecord(ctx, rec); err != nil {
			a.logger.Error("persist divergence record failed", "session_id", sessionID, "error", err)
		}
	}

	if state.Workpaper != nil {
		if err := a.db.SaveWorkpaper(ctx, state.Workpaper); err != nil {
			a.logger.Error("persist workpaper failed", "session_id", sessionID, "error", err)
		}
	}
}

// Subscribe returns a live event stream for a session.
func (a *App) Subscribe(sessionID uuid.UUID) *Subscription {
	return a.bus.Subscribe(sessionID)
}

// Unsubscribe releases a subscription.
func (a *App) Unsubscribe(sub *Subscription) {
	a.bus.Unsubscribe(sub)
}

// Feedback records an analyst judgment on a session's divergence decision
// and invalidates the tenant's cached threshold so the next session
// adapts.
func (a *App) Feedback(ctx context.Context, sessionID, tenantID uuid.UUID, wasAlert bool, outcome model.FeedbackOutcome) error {
	if a.db == nil {
		return fmt.Errorf("ventro: feedback requires persistence")
	}
	if _, err := a.db.InsertFeedback(ctx, sessionID, tenantID, wasAlert, outcome); err != nil {
		return err
	}
	a.thresholds.Invalidate(tenantID)
	return nil
}

// FeedbackAnalytics returns a tenant's per-outcome feedback counts over
// the trailing 90 days, for the divergence analytics panel.
func (a *App) FeedbackAnalytics(ctx context.Context, tenantID uuid.UUID) (map[model.FeedbackOutcome]int, error) {
	if a.db == nil {
		return nil, fmt.Errorf("ventro: analytics requires persistence")
	}
	return a.db.FeedbackAnalytics(ctx, tenantID)
}

// Session loads a persisted session record.
func (a *App) Session(ctx context.Context, tenantID, sessionID uuid.UUID) (Session, error) {
	if a.db == nil {
		return Session{}, fmt.Errorf("ventro: session lookup requires persistence")
	}
	return a.db.GetSession(ctx, tenantID, sessionID)
}

// Close releases all resources.
func (a *App) Close() {
	if a.keepAlive != nil {
		a.keepAlive()
	}
	a.closePartial()
}

func (a *App) closePartial() {
	if a.qdrant != nil {
		if err := a.qdrant.Close(); err != nil {
			a.logger.Warn("close qdrant", "error", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}

// buildProviders assembles the config-ordered chain. Unconfigured entries
// are skipped with a warning rather than failing startup: the router
// degrades gracefully and the deterministic terminal always exists.
func buildProviders(cfg config.Config, logger *slog.Logger) []llm.Provider {
	var providers []llm.Provider
	for _, name := range cfg.LLMChain {
		switch name {
		case "groq":
			if cfg.GroqAPIKey == "" {
				logger.Warn("provider skipped: GROQ_API_KEY not set", "provider", name)
				continue
			}
			providers = append(providers, llm.NewOpenAICompatible("groq", cfg.GroqAPIKey, cfg.GroqBaseURL, cfg.GroqModel, ""))
		case "openai":
			if cfg.OpenAIAPIKey == "" {
				logger.Warn("provider skipped: OPENAI_API_KEY not set", "provider", name)
				continue
			}
			providers = append(providers, llm.NewOpenAICompatible("openai", cfg.OpenAIAPIKey, "", cfg.OpenAIModel, cfg.OpenAIEmbed))
		case "anthropic":
			if cfg.AnthropicAPIKey == "" {
				logger.Warn("provider skipped: ANTHROPIC_API_KEY not set", "provider", name)
				continue
			}
			providers = append(providers, llm.NewAnthropic(cfg.AnthropicAPIKey, cfg.AnthropicModel))
		case "ollama":
			providers = append(providers, llm.NewOllama(cfg.OllamaURL, cfg.OllamaModel, cfg.OllamaEmbed))
		}
	}
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.Name()
	}
	logger.Info("llm chain configured", "providers", names)
	return providers
}

// routerEmbedder adapts the router's reasoning-vector surface to the chunk
// store's Embedder.
type routerEmbedder struct {
	router *llm.Router
}

func (e routerEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := e.router.ReasoningVector(ctx, text)
	if err != nil {
		return nil, err
	}
	return res.Vector, nil
}

// noChunks is the disabled chunk store.
type noChunks struct{}

func (noChunks) RetrieveChunks(context.Context, string, string, int) ([]model.Chunk, error) {
	return nil, nil
}

// emptyFeedback serves the threshold store when persistence is disabled:
// every tenant stays on the global prior.
type emptyFeedback struct{}

func (emptyFeedback) Recent(context.Context, uuid.UUID, int) ([]model.Feedback, error) {
	return nil, nil
}
