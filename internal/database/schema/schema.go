// Package schema embeds the subset of the sakila schema the service reads
// and writes. The running service never applies it; it exists to build
// test databases.
package schema

import "embed"

//go:embed *.sql
var FS embed.FS
