// Package profile provides read access to agent profiles, their tool
// bindings and the system-wide default model.
//
// SQLStore reads the relational store owned by the surrounding application
// and never writes to it. InMemoryStore serves profiles declared in
// configuration files, examples and tests.
package profile
