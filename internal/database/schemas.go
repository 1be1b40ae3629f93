package database

import "embed"

//go:embed schemas/*.sql
var schemaFS embed.FS

// schemaFiles maps database names to their embedded schema files.
var schemaFiles = map[string]string{
	"rental": "schemas/rental_schema.sql",
	"cache":  "schemas/cache_schema.sql",
}

// schemaFor returns the embedded DDL for a named database.
func schemaFor(name string) (string, bool) {
	file, ok := schemaFiles[name]
	if !ok {
		return "", false
	}
	content, err := schemaFS.ReadFile(file)
	if err != nil {
		return "", false
	}
	return string(content), true
}

// Schema exposes the embedded DDL for a named database. Tests use this to
// build in-memory databases with the production schema.
func Schema(name string) string {
	content, _ := schemaFor(name)
	return content
}
