// Package testutil contains builders that cut the boilerplate of
// constructing teams, agents and run contexts in tests. Not for production use.
package testutil
