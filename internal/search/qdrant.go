package search

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"github.com/NeoOne601/Ventro/internal/model"
)

// QdrantConfig holds configuration for connecting to Qdrant.
type QdrantConfig struct {
	URL        string // e.g. "https://xyz.cloud.qdrant.io:6333" or "http://localhost:6333"
	APIKey     string
	Collection string
}

// QdrantStore implements ChunkStore backed by a Qdrant collection of
// document chunks. Points carry the chunk text plus spatial payload
// (document_id, page, bbox coordinates) written by the ingestion service.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	embedder   Embedder
	logger     *slog.Logger
}

// parseQdrantURL extracts host, port, and TLS flag from a Qdrant URL.
// Accepts forms like "https://host:6333", "http://host:6333", or "host:6334".
func parseQdrantURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("search: invalid qdrant URL: %q", rawURL)
	}

	useTLS = u.Scheme == "https"
	host = u.Hostname()

	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("search: invalid port in qdrant URL: %q", portStr)
		}
		// If the user specified the REST port (6333), use the gRPC port (6334).
		if p == 6333 {
			port = 6334
		} else {
			port = p
		}
	} else {
		port = 6334
	}

	return host, port, useTLS, nil
}

// NewQdrantStore connects to the Qdrant server via gRPC.
func NewQdrantStore(cfg QdrantConfig, embedder Embedder, logger *slog.Logger) (*QdrantStore, error) {
	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("search: connect to qdrant at %s:%d: %w", host, port, err)
	}

	return &QdrantStore{
		client:     client,
		collection: cfg.Collection,
		embedder:   embedder,
		logger:     logger,
	}, nil
}

// Close releases the gRPC connection.
func (q *QdrantStore) Close() error { return q.client.Close() }

// RetrieveChunks embeds the probe and queries the chunk collection
// filtered to one document, best match first.
func (q *QdrantStore) RetrieveChunks(ctx context.Context, documentID, probe string, topK int) ([]model.Chunk, error) {
	if topK <= 0 {
		topK = RetrieveK
	}

	vec, err := q.embedder.Embed(ctx, probe)
	if err != nil {
		return nil, fmt.Errorf("search: embed probe: %w", err)
	}

	limit := uint64(topK) //nolint:gosec // topK is a small positive constant
	scored, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Filter: &qdrant.Filter{Must: []*qdrant.Condition{
			qdrant.NewMatch("document_id", documentID),
		}},
		Limit:       &limit,
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("search: qdrant query chunks: %w", err)
	}

	chunks := make([]model.Chunk, 0, len(scored))
	for _, sp := range scored {
		payload := sp.Payload
		text := payload["text"].GetStringValue()
		if text == "" {
			q.logger.Warn("qdrant: chunk point without text payload", "document_id", documentID)
			continue
		}
		chunks = append(chunks, model.Chunk{
			Text:  text,
			Score: sp.Score,
			Citation: model.Citation{
				DocumentID: documentID,
				Page:       int(payload["page"].GetIntegerValue()),
				BBox: model.BBox{
					X0: payload["x0"].GetDoubleValue(),
					Y0: payload["y0"].GetDoubleValue(),
					X1: payload["x1"].GetDoubleValue(),
					Y1: payload["y1"].GetDoubleValue(),
				},
			},
		})
	}

	return chunks, nil
}
