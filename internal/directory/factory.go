package directory

import (
	"fmt"
	"strings"
)

const (
	TypeMemory = "memory"
	TypeSQLite = "sqlite"
)

// NewDirectoryFromConfig builds the directory backend named by dirType.
func NewDirectoryFromConfig(dirType, sqlitePath string, history int, seedDemo bool) (ChatDirectory, error) {
	switch strings.ToLower(strings.TrimSpace(dirType)) {
	case "", TypeMemory:
		return NewMemoryDirectory(history, seedDemo), nil
	case TypeSQLite:
		return OpenSQLiteDirectory(sqlitePath, history, seedDemo)
	default:
		return nil, fmt.Errorf("unsupported directory type: %s", dirType)
	}
}
