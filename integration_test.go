package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/isdmx/coderunner/config"
	"github.com/isdmx/coderunner/httpserver"
	"github.com/isdmx/coderunner/logger"
	"github.com/isdmx/coderunner/mcpserver"
	"github.com/isdmx/coderunner/sandbox"
)

const testConfigYAML = `
cluster:
  namespace: codespaces
sandbox:
  poll_interval_ms: 5
  max_wait_ms: 300
  log_timeout_ms: 200
  delete_timeout_ms: 200
logging:
  mode: development
  level: debug
`

func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfigYAML), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

// podStatusAfter makes pod reads report status once getsBefore reads have
// returned the stored (pending) pod.
func podStatusAfter(cs *fake.Clientset, getsBefore int32, status corev1.PodStatus) {
	var gets atomic.Int32
	cs.PrependReactor("get", "pods", func(action k8stesting.Action) (bool, runtime.Object, error) {
		if gets.Add(1) <= getsBefore {
			return false, nil, nil
		}
		get := action.(k8stesting.GetAction)
		return true, &corev1.Pod{
			ObjectMeta: metav1.ObjectMeta{Name: get.GetName(), Namespace: get.GetNamespace()},
			Status:     status,
		}, nil
	})
}

func newStack(t *testing.T, cs *fake.Clientset) (*config.Config, http.Handler) {
	t.Helper()
	cfg := loadTestConfig(t)

	appLogger, err := logger.NewFromConfig(cfg)
	require.NoError(t, err)
	_ = appLogger.Sync()
	log := zaptest.NewLogger(t)

	client, err := sandbox.NewLifecycleClient(log, cfg, cs)
	require.NoError(t, err)
	builder, err := sandbox.NewSpecBuilderFromConfig(cfg)
	require.NoError(t, err)
	svc := sandbox.NewService(log, builder, sandbox.NewOrchestratorFromConfig(log, client, cfg), cfg)

	mcp, err := mcpserver.New(cfg, log, svc)
	require.NoError(t, err)

	return cfg, httpserver.New(cfg, log, svc, httpserver.WithMCPHandler(mcp.HTTPHandler())).Handler()
}

func postRunCode(t *testing.T, h http.Handler, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/run-code", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec.Code, out
}

func remainingPods(t *testing.T, cs *fake.Clientset, namespace string) int {
	t.Helper()
	pods, err := cs.CoreV1().Pods(namespace).List(context.Background(), metav1.ListOptions{})
	require.NoError(t, err)
	return len(pods.Items)
}

func TestRunCodeAgainstFakeCluster(t *testing.T) {
	t.Run("Succeeded", func(t *testing.T) {
		cs := fake.NewClientset()
		podStatusAfter(cs, 2, corev1.PodStatus{Phase: corev1.PodSucceeded})
		cfg, h := newStack(t, cs)

		status, body := postRunCode(t, h, `{"language":"python","code":"print(1)"}`)

		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "fake logs", body["output"])
		assert.Equal(t, 0, remainingPods(t, cs, cfg.Cluster.Namespace))
	})

	t.Run("PodSpec", func(t *testing.T) {
		cs := fake.NewClientset()
		podStatusAfter(cs, 0, corev1.PodStatus{Phase: corev1.PodSucceeded})
		_, h := newStack(t, cs)

		postRunCode(t, h, `{"language":"node","code":"console.log(1)"}`)

		var created *corev1.Pod
		for _, action := range cs.Actions() {
			if c, ok := action.(k8stesting.CreateAction); ok && action.GetResource().Resource == "pods" {
				created = c.GetObject().(*corev1.Pod)
			}
		}
		require.NotNil(t, created)
		assert.Equal(t, "codespaces", created.Namespace)
		assert.True(t, strings.HasPrefix(created.Name, "code-runner-"))
		assert.Equal(t, "node:22", created.Spec.Containers[0].Image)
		assert.Equal(t, []string{"node", "-e", "console.log(1)"}, created.Spec.Containers[0].Command)
	})

	t.Run("ImagePullBackOff", func(t *testing.T) {
		cs := fake.NewClientset()
		podStatusAfter(cs, 1, corev1.PodStatus{
			Phase: corev1.PodPending,
			ContainerStatuses: []corev1.ContainerStatus{{
				Name: "runner",
				State: corev1.ContainerState{Waiting: &corev1.ContainerStateWaiting{
					Reason:  "ImagePullBackOff",
					Message: "Back-off pulling image",
				}},
			}},
		})
		cfg, h := newStack(t, cs)

		status, body := postRunCode(t, h, `{"language":"python","code":"print(1)"}`)

		assert.Equal(t, http.StatusUnprocessableEntity, status)
		assert.Equal(t, "Back-off pulling image", body["error"])
		assert.Equal(t, 0, remainingPods(t, cs, cfg.Cluster.Namespace))
	})

	t.Run("TimedOut", func(t *testing.T) {
		cs := fake.NewClientset()
		cfg, h := newStack(t, cs)

		status, body := postRunCode(t, h, `{"language":"sh","code":"sleep 60"}`)

		assert.Equal(t, http.StatusGatewayTimeout, status)
		assert.Equal(t, "Execution timed out", body["error"])
		assert.Equal(t, 0, remainingPods(t, cs, cfg.Cluster.Namespace))
	})

	t.Run("RejectedWithoutClusterCalls", func(t *testing.T) {
		cs := fake.NewClientset()
		_, h := newStack(t, cs)

		status, body := postRunCode(t, h, `{"language":"ruby","code":"puts 1"}`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Unsupported language", body["error"])

		status, body = postRunCode(t, h, `{"language":"python","code":"`+strings.Repeat("x", 1001)+`"}`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "Invalid or too long code", body["error"])

		assert.Empty(t, cs.Actions())
	})
}
