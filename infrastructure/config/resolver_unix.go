//go:build !windows

package config

import "path/filepath"

// DefaultResolver resolves the supervisor's config file to
// /etc/svcbroker/config.yaml, mirroring
// infrastructure/PAL/configuration/client.DefaultResolver's
// /etc/tungo/client_configuration.json convention.
type DefaultResolver struct{}

// NewDefaultResolver constructs the platform-default Resolver.
func NewDefaultResolver() Resolver { return DefaultResolver{} }

func (DefaultResolver) Resolve() (string, error) {
	return filepath.Join(string(filepath.Separator), "etc", "svcbroker", "config.yaml"), nil
}
