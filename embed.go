package meshgw

import _ "embed"

// SchemaSQL is the full database schema, applied once on a fresh database
// by database.DB.InitSchema. There is no migration machinery: schema
// changes ship as a new schema.sql plus an operator-run backfill, not as
// incremental ALTERs.
//go:embed schema.sql
var SchemaSQL []byte
