package storage

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	invoiceapp "github.com/invoiceflow/backend/internal/application/invoice"
)

// Ensure MemoryDocumentStorage implements DocumentStorage
var _ invoiceapp.DocumentStorage = (*MemoryDocumentStorage)(nil)

// StoredDocument is a document held by MemoryDocumentStorage
type StoredDocument struct {
	ContentType string
	Content     []byte
}

// MemoryDocumentStorage keeps documents in process memory for tests.
// The server leaves storage unset when the object store is disabled.
type MemoryDocumentStorage struct {
	// BaseURL prefixes generated download URLs.
	// Defaults to "https://storage.example.com" if not set
	BaseURL string

	mu   sync.RWMutex
	docs map[string]StoredDocument
}

// NewMemoryDocumentStorage creates an empty MemoryDocumentStorage
func NewMemoryDocumentStorage() *MemoryDocumentStorage {
	return &MemoryDocumentStorage{
		BaseURL: "https://storage.example.com",
		docs:    make(map[string]StoredDocument),
	}
}

// Put stores a copy of the document
func (s *MemoryDocumentStorage) Put(ctx context.Context, key, contentType string, content []byte) error {
	if key == "" {
		return errors.New("storage key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[key] = StoredDocument{ContentType: contentType, Content: append([]byte(nil), content...)}
	return nil
}

// Get returns the content of a stored document
func (s *MemoryDocumentStorage) Get(ctx context.Context, key string) ([]byte, error) {
	doc, ok := s.Document(key)
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return append([]byte(nil), doc.Content...), nil
}

// Exists reports whether a document is stored under the key
func (s *MemoryDocumentStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := s.Document(key)
	return ok, nil
}

// Document returns a stored document with its content type
func (s *MemoryDocumentStorage) Document(key string) (StoredDocument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[key]
	return doc, ok
}

// Len returns the number of stored documents
func (s *MemoryDocumentStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Delete removes a document
func (s *MemoryDocumentStorage) Delete(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("storage key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, key)
	return nil
}

// PresignGet returns a fake expiring URL for a stored document
func (s *MemoryDocumentStorage) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if _, ok := s.Document(key); !ok {
		return "", ErrDocumentNotFound
	}
	expiresAt := time.Now().Add(ttl)
	return s.BaseURL + "/download/" + key + "?expires=" + url.QueryEscape(expiresAt.Format(time.RFC3339)), nil
}
