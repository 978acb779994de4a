package mcpserver

import (
	"fmt"

	"sqlnosql/internal/domain"
)

// argString reads an optional string argument.
func argString(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

// argInt reads an optional number argument; JSON numbers arrive as float64.
func argInt(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func argBool(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}

// sideDirection maps "sql" or "mongo" to the direction that reads it.
func sideDirection(side string) (domain.Direction, error) {
	switch side {
	case "", "sql":
		return domain.TabularToDocument, nil
	case "mongo":
		return domain.DocumentToTabular, nil
	}
	return "", fmt.Errorf("from must be sql or mongo, got %q", side)
}
