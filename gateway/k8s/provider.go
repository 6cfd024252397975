// Package k8s scales worker capacity by driving the replica count of one
// Kubernetes Deployment per worker role through the scale subresource.
package k8s

import (
	"context"
	"fmt"
	"log/slog"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/farmer1st/farmcode"
	"github.com/farmer1st/farmcode/gateway"
	"github.com/farmer1st/farmcode/phase"
)

// Compile-time check that Provider implements gateway.Scaler.
var _ gateway.Scaler = (*Provider)(nil)

const defaultDeploymentPrefix = "farmcode-worker-"

// Provider implements gateway.Scaler using the Deployment scale
// subresource. Each role maps to one Deployment; the mapping is either the
// explicit table given via WithDeployments or "<prefix><role>".
type Provider struct {
	client      kubernetes.Interface
	namespace   string
	deployments map[phase.Role]string
	prefix      string
	logger      *slog.Logger
}

// New creates a Kubernetes capacity provider.
// The clientset and namespace are required. Use functional options to
// customise the role-to-Deployment mapping or logger.
func New(client kubernetes.Interface, namespace string, opts ...Option) *Provider {
	p := &Provider{
		client:    client,
		namespace: namespace,
		prefix:    defaultDeploymentPrefix,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ScaleTo sets the desired replica count on the role's Deployment.
func (p *Provider) ScaleTo(ctx context.Context, role phase.Role, replicas int) error {
	name, err := p.deploymentFor(role)
	if err != nil {
		return err
	}

	scale, err := p.client.AppsV1().Deployments(p.namespace).GetScale(ctx, name, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("k8s: get scale of %q: %w", name, err)
	}

	if scale.Spec.Replicas == int32(replicas) {
		return nil
	}
	scale.Spec.Replicas = int32(replicas)

	_, err = p.client.AppsV1().Deployments(p.namespace).UpdateScale(ctx, name, scale, metav1.UpdateOptions{})
	if err != nil {
		return fmt.Errorf("k8s: update scale of %q: %w", name, err)
	}
	p.logger.Info("scaled worker deployment",
		slog.String("deployment", name),
		slog.Int("replicas", replicas),
	)
	return nil
}

// ReadyReplicas returns how many replicas of the role's Deployment are
// ready to accept work.
func (p *Provider) ReadyReplicas(ctx context.Context, role phase.Role) (int, error) {
	name, err := p.deploymentFor(role)
	if err != nil {
		return 0, err
	}

	dep, err := p.client.AppsV1().Deployments(p.namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return 0, fmt.Errorf("k8s: get deployment %q: %w", name, err)
	}
	return int(dep.Status.ReadyReplicas), nil
}

// deploymentFor resolves a role to its Deployment name.
func (p *Provider) deploymentFor(role phase.Role) (string, error) {
	if !role.Valid() || role == phase.RoleNone {
		return "", fmt.Errorf("%w: %q", farmcode.ErrUnknownRole, role)
	}
	if p.deployments != nil {
		name, ok := p.deployments[role]
		if !ok {
			return "", fmt.Errorf("%w: no deployment mapped for %q", farmcode.ErrUnknownRole, role)
		}
		return name, nil
	}
	return p.prefix + string(role), nil
}
