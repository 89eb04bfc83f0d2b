// Package ports declares the interfaces through which the engine talks to
// the outside world. Adapters live under pkg/adapters and internal/adapters.
package ports
