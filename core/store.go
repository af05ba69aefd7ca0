package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by stores when a record id does not exist.
var ErrNotFound = errors.New("not found")

// Meta holds the three free-form metadata columns of a Record.
// Empty fields in a filter match anything.
type Meta struct {
	Meta1 string `json:"meta1,omitempty"`
	Meta2 string `json:"meta2,omitempty"`
	Meta3 string `json:"meta3,omitempty"`
}

// Matches reports whether m satisfies filter.
func (m Meta) Matches(filter Meta) bool {
	return (filter.Meta1 == "" || filter.Meta1 == m.Meta1) &&
		(filter.Meta2 == "" || filter.Meta2 == m.Meta2) &&
		(filter.Meta3 == "" || filter.Meta3 == m.Meta3)
}

// Record is the unit of the persistence boundary. Key carries the namespace,
// e.g. "diary-<userId>-<agentName>-<teamName>".
type Record struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Content   string    `json:"content"`
	Meta      Meta      `json:"meta"`
	CreatedAt time.Time `json:"createdAt"`
}

// DataStore is the narrow CRUD boundary all context, diary and notes
// persistence funnels through.
type DataStore interface {
	// StoreData writes rec and returns its id. Unless allowMultiple is set, an
	// existing record with the same key and metadata is overwritten.
	StoreData(ctx context.Context, rec Record, allowMultiple bool) (string, error)
	// GetDataSingle returns the newest record under key matching filter.
	GetDataSingle(ctx context.Context, key string, filter Meta) (*Record, bool, error)
	// GetDataMany returns records under key matching filter, newest first.
	// limit <= 0 means no limit.
	GetDataMany(ctx context.Context, key string, filter Meta, limit int) ([]Record, error)
	// DeleteData removes a record by id.
	DeleteData(ctx context.Context, id string) error
}

// Searcher is the similarity-search oracle used for diary and knowledge recall.
type Searcher interface {
	Search(ctx context.Context, query, namespace string, filter map[string]any, topK int) ([]SearchResult, error)
}

// Indexer adds documents to a similarity index.
type Indexer interface {
	Index(ctx context.Context, namespace string, doc SearchResult) error
}

// CredentialStore resolves decrypted per-user credentials. ok is false when
// the credential does not exist.
type CredentialStore interface {
	GetDecryptedCredential(ctx context.Context, userID, name string) (value string, ok bool, err error)
}

// DiaryNamespace is the key under which an agent's diary entries are stored.
func DiaryNamespace(userID, agentName, teamName string) string {
	return fmt.Sprintf("diary-%s-%s-%s", userID, agentName, teamName)
}

// KnowledgeNamespace is the search namespace of an agent's knowledge base.
func KnowledgeNamespace(userID, agentName string) string {
	return fmt.Sprintf("knowledge-%s-%s", userID, agentName)
}

// DatabaseNamespace is the key prefix used by the database tool.
func DatabaseNamespace(userID, teamName, table string) string {
	return fmt.Sprintf("db-%s-%s-%s", userID, teamName, table)
}

// FileNamespace is the key used by the file-store tool.
func FileNamespace(userID, teamName string) string {
	return fmt.Sprintf("files-%s-%s", userID, teamName)
}

// CredentialNamespace is the key under which encrypted credentials live.
func CredentialNamespace(userID string) string {
	return fmt.Sprintf("credential-%s", userID)
}
