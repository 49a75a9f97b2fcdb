// Package migrations embeds the SQL schema for every supported driver.
package migrations

import "embed"

// FS holds postgres/*.sql (golang-migrate format) and sqlite/*.sql
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
