package sandbox

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"
	"k8s.io/utils/ptr"
)

// Labels applied to every execution unit
const (
	LabelManagedBy = "app.kubernetes.io/managed-by"
	LabelLanguage  = "coderunner.isdmx.io/language"
	ManagedByValue = "coderunner"
)

// DefaultContainerName is the name of the single container in each pod
const DefaultContainerName = "runner"

// KubernetesClient implements LifecycleClient with one Pod per job
type KubernetesClient struct {
	clientset      kubernetes.Interface
	logger         *zap.Logger
	containerName  string
	activeDeadline int64
	logLimitBytes  int64
}

var _ LifecycleClient = (*KubernetesClient)(nil)

// KubernetesOption defines a functional option for KubernetesClient
type KubernetesOption func(*KubernetesClient)

// WithContainerName sets the container name used for create and logs
func WithContainerName(name string) KubernetesOption {
	return func(k *KubernetesClient) {
		k.containerName = name
	}
}

// WithActiveDeadline sets spec.activeDeadlineSeconds so the kubelet stops
// the pod even if teardown never reaches the API server. Zero disables it.
func WithActiveDeadline(seconds int64) KubernetesOption {
	return func(k *KubernetesClient) {
		k.activeDeadline = seconds
	}
}

// WithLogLimitBytes caps the log bytes read per job. Zero means unlimited.
func WithLogLimitBytes(limit int64) KubernetesOption {
	return func(k *KubernetesClient) {
		k.logLimitBytes = limit
	}
}

// NewKubernetesClient creates a KubernetesClient over a shared clientset
func NewKubernetesClient(logger *zap.Logger, clientset kubernetes.Interface, opts ...KubernetesOption) *KubernetesClient {
	k := &KubernetesClient{
		clientset:     clientset,
		logger:        logger,
		containerName: DefaultContainerName,
	}

	for _, opt := range opts {
		opt(k)
	}

	return k
}

// Create submits the pod for job
func (k *KubernetesClient) Create(ctx context.Context, job *Job) error {
	pod, err := k.podManifest(job)
	if err != nil {
		return Permanent(err)
	}

	if _, err := k.clientset.CoreV1().Pods(job.Namespace).Create(ctx, pod, metav1.CreateOptions{}); err != nil {
		return fmt.Errorf("create pod %s: %w", job.ID, translateError(err))
	}

	k.logger.Debug("pod created", zap.String("pod", job.ID), zap.String("namespace", job.Namespace))
	return nil
}

// Status reads status.phase and the runner container's waiting state
func (k *KubernetesClient) Status(ctx context.Context, job *Job) (UnitStatus, error) {
	pod, err := k.clientset.CoreV1().Pods(job.Namespace).Get(ctx, job.ID, metav1.GetOptions{})
	if err != nil {
		return UnitStatus{}, fmt.Errorf("get pod %s: %w", job.ID, translateError(err))
	}

	status := UnitStatus{Phase: podPhase(pod.Status.Phase)}
	if cs := k.containerStatus(pod); cs != nil && cs.State.Waiting != nil {
		status.WaitingReason = cs.State.Waiting.Reason
		status.WaitingMessage = cs.State.Waiting.Message
	}

	return status, nil
}

// Logs reads the runner container's stdout/stderr stream
func (k *KubernetesClient) Logs(ctx context.Context, job *Job) (string, error) {
	opts := &corev1.PodLogOptions{Container: k.containerName}
	if k.logLimitBytes > 0 {
		opts.LimitBytes = ptr.To(k.logLimitBytes)
	}

	raw, err := k.clientset.CoreV1().Pods(job.Namespace).GetLogs(job.ID, opts).DoRaw(ctx)
	if err != nil {
		return "", fmt.Errorf("read logs of pod %s: %w", job.ID, translateError(err))
	}

	return string(raw), nil
}

// Delete removes the pod immediately. A missing pod is not an error.
func (k *KubernetesClient) Delete(ctx context.Context, job *Job) error {
	err := k.clientset.CoreV1().Pods(job.Namespace).Delete(ctx, job.ID, metav1.DeleteOptions{
		GracePeriodSeconds: ptr.To[int64](0),
		PropagationPolicy:  ptr.To(metav1.DeletePropagationBackground),
	})
	if apierrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete pod %s: %w", job.ID, translateError(err))
	}
	return nil
}

// Sweep deletes managed pods in namespace created more than maxAge ago
func (k *KubernetesClient) Sweep(ctx context.Context, namespace string, maxAge time.Duration) (int, error) {
	pods, err := k.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: labels.SelectorFromSet(labels.Set{LabelManagedBy: ManagedByValue}).String(),
	})
	if err != nil {
		return 0, fmt.Errorf("list pods in %s: %w", namespace, translateError(err))
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for i := range pods.Items {
		pod := &pods.Items[i]
		if pod.DeletionTimestamp != nil || pod.CreationTimestamp.After(cutoff) {
			continue
		}
		if err := k.Delete(ctx, &Job{ID: pod.Name, Namespace: pod.Namespace}); err != nil {
			k.logger.Warn("failed to delete stale pod", zap.String("pod", pod.Name), zap.Error(err))
			continue
		}
		removed++
	}

	return removed, nil
}

func (k *KubernetesClient) podManifest(job *Job) (*corev1.Pod, error) {
	cpu, err := resource.ParseQuantity(job.Spec.Limits.CPU)
	if err != nil {
		return nil, fmt.Errorf("invalid cpu limit %q: %w", job.Spec.Limits.CPU, err)
	}
	memory, err := resource.ParseQuantity(job.Spec.Limits.Memory)
	if err != nil {
		return nil, fmt.Errorf("invalid memory limit %q: %w", job.Spec.Limits.Memory, err)
	}
	limits := corev1.ResourceList{
		corev1.ResourceCPU:    cpu,
		corev1.ResourceMemory: memory,
	}

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      job.ID,
			Namespace: job.Namespace,
			Labels: map[string]string{
				LabelManagedBy: ManagedByValue,
				LabelLanguage:  string(job.Spec.Language),
			},
		},
		Spec: corev1.PodSpec{
			RestartPolicy:                corev1.RestartPolicyNever,
			AutomountServiceAccountToken: ptr.To(false),
			EnableServiceLinks:           ptr.To(false),
			Containers: []corev1.Container{
				{
					Name:    k.containerName,
					Image:   job.Spec.Image,
					Command: job.Spec.Entrypoint,
					Resources: corev1.ResourceRequirements{
						Limits:   limits,
						Requests: limits.DeepCopy(),
					},
					SecurityContext: &corev1.SecurityContext{
						AllowPrivilegeEscalation: ptr.To(false),
						Capabilities: &corev1.Capabilities{
							Drop: []corev1.Capability{"ALL"},
						},
					},
				},
			},
		},
	}
	if k.activeDeadline > 0 {
		pod.Spec.ActiveDeadlineSeconds = ptr.To(k.activeDeadline)
	}

	return pod, nil
}

func (k *KubernetesClient) containerStatus(pod *corev1.Pod) *corev1.ContainerStatus {
	for i := range pod.Status.ContainerStatuses {
		if pod.Status.ContainerStatuses[i].Name == k.containerName {
			return &pod.Status.ContainerStatuses[i]
		}
	}
	if len(pod.Status.ContainerStatuses) > 0 {
		return &pod.Status.ContainerStatuses[0]
	}
	return nil
}

func podPhase(phase corev1.PodPhase) Phase {
	switch phase {
	case corev1.PodPending, "":
		return PhasePending
	case corev1.PodRunning:
		return PhaseRunning
	case corev1.PodSucceeded:
		return PhaseSucceeded
	case corev1.PodFailed:
		return PhaseFailed
	default:
		return PhaseUnknown
	}
}

// translateError maps API errors onto the LifecycleClient error vocabulary
func translateError(err error) error {
	switch {
	case apierrors.IsNotFound(err):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case apierrors.IsAlreadyExists(err):
		return fmt.Errorf("%w: %w", ErrAlreadyExists, err)
	case apierrors.IsForbidden(err),
		apierrors.IsUnauthorized(err),
		apierrors.IsInvalid(err),
		apierrors.IsBadRequest(err),
		apierrors.IsMethodNotSupported(err):
		return Permanent(err)
	default:
		return err
	}
}
