// Package vectorstore persists embedded chunks in named collections and
// answers nearest-neighbour queries over them.
//
// Two backends implement Store: ChromemStore, an embedded database that
// persists to a local directory (the default), and QdrantStore, which talks
// to a Qdrant server over gRPC. Vectors are always computed by the caller;
// stores never embed text on their own.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates the backend could not be reached.
	ErrConnectionFailed = errors.New("failed to connect to vector store")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrMissingEmbedding indicates a document was added without a vector.
	ErrMissingEmbedding = errors.New("document has no embedding")
)

// MetadataSource is the metadata key DeleteBySource matches on.
const MetadataSource = "source"

// Store is the narrow contract the retrieval engine needs from a vector
// database. Collection names must match ^[a-z0-9_]{1,64}$.
type Store interface {
	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context, collection string) error

	// CollectionExists reports whether the collection exists.
	CollectionExists(ctx context.Context, collection string) (bool, error)

	// DeleteCollection removes the collection and its records.
	// Deleting a missing collection is not an error.
	DeleteCollection(ctx context.Context, collection string) error

	// DeleteBySource removes every document whose "source" metadata equals
	// source. A missing collection or an unknown source is not an error.
	DeleteBySource(ctx context.Context, collection, source string) error

	// AddDocuments persists documents with precomputed embeddings,
	// creating the collection if needed.
	AddDocuments(ctx context.Context, collection string, docs []Document) error

	// Query returns up to k documents nearest to vector, best first.
	// k larger than the collection returns every document.
	Query(ctx context.Context, collection string, vector []float32, k int) ([]SearchResult, error)

	// Count returns the number of documents in the collection, or
	// ErrCollectionNotFound.
	Count(ctx context.Context, collection string) (int, error)

	// Close releases backend resources.
	Close() error
}
