// Package db embeds the PostgreSQL schema of the pricing service.
package db

import _ "embed"

// Schema creates the catalog, coupon, payment and API key tables. Every
// statement is idempotent so it runs on each start.
//
//go:embed migrations/001_schema.sql
var Schema string
