// Package memory provides the vector memory store: memory records and their
// similarity index entries persisted together in an embedded SQLite database,
// searched by exhaustive cosine similarity.
//
// Agent-scoped and user-scoped memories live in separate tables. Every write
// that touches a record also touches its index entry inside the same
// transaction, so a record never exists without its index entry.
package memory
