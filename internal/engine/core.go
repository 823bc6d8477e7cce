package engine

import "context"

type Named interface {
	Name() string
	Kind() string
}

type Closer interface {
	Close(context.Context) error
}

const (
	// BackupTimestamp is the sortable prefix of a backup identifier.
	// Lexical order of identifiers built with it is chronological order.
	BackupTimestamp = "2006-01-02-150405"
)
