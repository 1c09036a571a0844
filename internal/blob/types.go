// Package blob re-exports the blob abstractions and selects a backend.
package blob

import (
	"raceview/internal/blob/core"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	// ErrNotFound matches errors for missing keys.
	ErrNotFound = core.ErrNotFound
	// ErrExists is returned when writing to a taken key without overwrite.
	ErrExists = core.ErrExists
)
