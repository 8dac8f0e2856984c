package vectorstore

import (
	"fmt"

	"github.com/fyrsmithlabs/localrag/internal/config"
	"go.uber.org/zap"
)

// NewStore creates the Store selected by cfg.VectorStore:
//   - "chromem" (default): embedded database under cfg.VectorPath
//   - "qdrant": a Qdrant server at cfg.QdrantHost:cfg.QdrantPort
//
// dimension is the embedding size; Qdrant needs it to create collections.
func NewStore(cfg *config.Config, dimension int, logger *zap.Logger) (Store, error) {
	switch cfg.VectorStore {
	case config.StoreChromem, "":
		return NewChromemStore(ChromemConfig{Path: cfg.VectorPath}, logger)

	case config.StoreQdrant:
		if dimension <= 0 {
			return nil, fmt.Errorf("%w: qdrant requires a positive vector size, got %d", ErrInvalidConfig, dimension)
		}
		return NewQdrantStore(QdrantConfig{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			UseTLS:     cfg.QdrantUseTLS,
			VectorSize: uint64(dimension),
		}, logger)

	default:
		return nil, fmt.Errorf("%w: unsupported vector store %q (supported: chromem, qdrant)", ErrInvalidConfig, cfg.VectorStore)
	}
}

// Location describes where a store keeps its data, for stats output.
func Location(s Store) string {
	switch st := s.(type) {
	case *ChromemStore:
		return st.Path()
	case *QdrantStore:
		return st.Location()
	default:
		return ""
	}
}
