package sandbox

import (
	"fmt"

	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"

	"github.com/isdmx/coderunner/config"
)

// NewLifecycleClient creates the backend selected by cfg.Sandbox.Backend.
// clientset is only used, and must be non-nil, for the kubernetes backend.
func NewLifecycleClient(logger *zap.Logger, cfg *config.Config, clientset kubernetes.Interface) (LifecycleClient, error) {
	switch cfg.Sandbox.Backend {
	case "kubernetes":
		if clientset == nil {
			return nil, fmt.Errorf("kubernetes backend requires a clientset")
		}
		return NewKubernetesClient(logger, clientset,
			WithContainerName(cfg.Cluster.ContainerName),
			WithActiveDeadline(cfg.Cluster.ActiveDeadlineSec),
			WithLogLimitBytes(cfg.Sandbox.LogLimitBytes),
		), nil
	case "docker", "podman":
		return NewContainerCLIClient(logger, cfg.Sandbox.Backend), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Sandbox.Backend)
	}
}
