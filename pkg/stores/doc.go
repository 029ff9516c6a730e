// Package stores keeps a history of configuration loads in SQLite: one
// record per attempt with its outcome, error kind and the policy findings
// raised against it. The schema is managed with embedded migrations.
package stores
