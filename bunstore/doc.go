// Package bunstore provides repositorycache.RecordStore implementations on
// top of bun, and the transaction.Beginner that lets a transaction.Coordinator
// open bun transactions.
//
// Store reads and writes rows of one table as maps and can embed related rows
// through Joins. RepositoryStore wraps an existing go-repository-bun
// repository of models.
package bunstore
