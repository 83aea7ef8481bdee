// Package store defines the persistence interfaces and sentinel errors
// used across the engine. Implementations live under
// internal/platform; services and consumers depend only on these
// interfaces.
package store
