// Package ratings persists the user's per-movie star ratings.
//
// Ratings are stored as a single JSON object mapping movie IDs to a rating
// index in [0, MaxIndex]. Every mutation is a read-modify-write of the file
// performed under an advisory file lock so the CLI and a running server can
// share one ratings file.
package ratings
