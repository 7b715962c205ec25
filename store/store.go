// Package store provides the settings persistence boundary of fabdrive.
//
// The engine persists device settings through the Store interface as flat
// key/value fields. A device missing from the store is not an error to the
// engine: settings updates still apply in memory.
package store

import (
	"context"
	"errors"
)

// ErrNotFound indicates that no record exists for the given device id.
var ErrNotFound = errors.New("store: device not found")

// Store persists per-device settings fields.
type Store interface {
	// FindByID returns the persisted settings fields of a device.
	// Returns ErrNotFound when the device has never been saved.
	FindByID(ctx context.Context, id string) (map[string]any, error)

	// Update merges the given fields into the device's persisted settings.
	// Returns ErrNotFound when the device has never been saved.
	Update(ctx context.Context, id string, fields map[string]any) error
}
