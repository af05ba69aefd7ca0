// Package memory holds agent recall: similarity indexes implementing
// core.Searcher and core.Indexer, and the Diary that persists turn summaries
// under the diary namespace and indexes them for later retrieval.
//
// InMemoryIndex is a keyword index for tests and single process setups; the
// pgvector subpackage provides embedding-based recall on Postgres.
package memory
