//go:build cgo && sqlite3_cgo

package db

// Build with -tags sqlite3_cgo to link the cgo driver instead of the wasm one.
import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	driverID   = "mattn/go-sqlite3"
	driverName = "sqlite3"
)
