// Package store persists the advisor's named JSON documents.
//
// Every document (action list, action history, learning windows, schedule
// state, latest run snapshot) is rewritten wholesale on each change. Two
// backends exist: SQLite (default, one row per document) and Redis (one key
// per document). Memory is provided for tests and dry runs.
package store
