package k8s

import (
	"log/slog"

	"github.com/farmer1st/farmcode/phase"
)

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// WithDeployments sets an explicit role-to-Deployment mapping. When set,
// roles absent from the table are rejected instead of falling back to the
// name prefix.
func WithDeployments(m map[phase.Role]string) Option {
	return func(p *Provider) { p.deployments = m }
}

// WithDeploymentPrefix sets the prefix for derived Deployment names.
// Default: "farmcode-worker-".
func WithDeploymentPrefix(prefix string) Option {
	return func(p *Provider) { p.prefix = prefix }
}
