package commands

import (
	"database/sql"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// printYAML writes v to w as a YAML document
func printYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// getDatabaseInfo returns database connection information
func getDatabaseInfo(db *sql.DB) string {
	if db == nil {
		return "Not connected"
	}

	var dbName string
	if err := db.QueryRow("SELECT current_database()").Scan(&dbName); err != nil {
		return "Connected (unknown database)"
	}
	return fmt.Sprintf("Connected to %s", dbName)
}
