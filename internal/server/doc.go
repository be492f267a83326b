// Package server implements the core of the Nexus chat server: per-connection
// sessions, the shared user/room/reply registries, and room broadcasting.
//
// The implementation is organized into specialized files for configuration,
// registries, broadcasting, sessions, and transports to keep the codebase
// maintainable and testable as the project grows.
package server
