package sandbox

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	ctrlconfig "sigs.k8s.io/controller-runtime/pkg/client/config"

	"github.com/isdmx/coderunner/config"
)

const userAgent = "coderunner"

// NewClientset builds a clientset from cfg.Cluster.Kubeconfig when set,
// otherwise from the standard discovery chain (--kubeconfig flag,
// KUBECONFIG, in-cluster, ~/.kube/config).
func NewClientset(cfg *config.Config) (kubernetes.Interface, error) {
	var (
		restCfg *rest.Config
		err     error
	)
	if cfg.Cluster.Kubeconfig != "" {
		restCfg, err = clientcmd.BuildConfigFromFlags("", cfg.Cluster.Kubeconfig)
	} else {
		restCfg, err = ctrlconfig.GetConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cluster credentials: %w", err)
	}

	if cfg.Cluster.QPS > 0 {
		restCfg.QPS = cfg.Cluster.QPS
	}
	if cfg.Cluster.Burst > 0 {
		restCfg.Burst = cfg.Cluster.Burst
	}
	restCfg.UserAgent = userAgent

	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	return clientset, nil
}

// EnsureNamespace creates namespace if it does not exist yet
func EnsureNamespace(ctx context.Context, logger *zap.Logger, clientset kubernetes.Interface, namespace string) error {
	_, err := clientset.CoreV1().Namespaces().Get(ctx, namespace, metav1.GetOptions{})
	if err == nil {
		return nil
	}
	if !apierrors.IsNotFound(err) {
		return fmt.Errorf("get namespace %s: %w", namespace, err)
	}

	ns := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name:   namespace,
			Labels: map[string]string{LabelManagedBy: ManagedByValue},
		},
	}
	_, err = clientset.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create namespace %s: %w", namespace, err)
	}

	logger.Info("namespace created", zap.String("namespace", namespace))
	return nil
}
