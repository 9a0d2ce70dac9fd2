//go:build windows

package config

import (
	"os"
	"path/filepath"
)

// DefaultResolver resolves the supervisor's config file under
// %PROGRAMDATA%\svcbroker\config.yaml.
type DefaultResolver struct{}

// NewDefaultResolver constructs the platform-default Resolver.
func NewDefaultResolver() Resolver { return DefaultResolver{} }

func (DefaultResolver) Resolve() (string, error) {
	root := os.Getenv("PROGRAMDATA")
	if root == "" {
		root = `C:\ProgramData`
	}
	return filepath.Join(root, "svcbroker", "config.yaml"), nil
}
