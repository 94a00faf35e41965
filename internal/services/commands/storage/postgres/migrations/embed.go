// Package migrations contains the Postgres schema for the command store.
package migrations

import _ "embed"

// Schema is idempotent DDL applied on every open.
//
//go:embed schema.sql
var Schema string
