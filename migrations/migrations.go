// Package migrations carries the audit store schema, embedded so the
// binary can apply it from any working directory.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
