// Package migrations embeds the viewstore's golang-migrate SQL migration
// set for the postgres backend.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
