// Package environment adapts the process environment to the driven
// Environment port.
package environment

import (
	"os"

	"github.com/ericfisherdev/credvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Environment = OS{}

// OS reads variables from the process environment.
type OS struct{}

// LookupEnv delegates to os.LookupEnv.
func (OS) LookupEnv(name string) (string, bool) {
	return os.LookupEnv(name)
}

// Map is a fixed set of variables, used where the process environment must
// not leak in (tests, dry runs).
type Map map[string]string

// LookupEnv returns the value stored under name.
func (m Map) LookupEnv(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}
