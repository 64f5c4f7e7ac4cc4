package sandbox

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/coderunner/config"
)

type recordingRunner struct {
	calls   int
	spec    SandboxSpec
	ctxErr  error
	outcome Outcome
}

func (r *recordingRunner) Run(ctx context.Context, spec SandboxSpec) Outcome {
	r.calls++
	r.spec = spec
	r.ctxErr = ctx.Err()
	return r.outcome
}

func testService(t *testing.T, runner Runner) *Service {
	t.Helper()
	cfg := &config.Config{Sandbox: config.SandboxConfig{MaxCodeLength: 1000}}
	return NewService(zaptest.NewLogger(t), testBuilder(t), runner, cfg)
}

func TestServiceRejectsBeforeRunning(t *testing.T) {
	tests := []struct {
		name    string
		req     SandboxRequest
		message string
	}{
		{"TooLong", SandboxRequest{Language: "python", Code: strings.Repeat("x", 1001)}, MsgInvalidCode},
		{"Ruby", SandboxRequest{Language: "ruby", Code: "puts 1"}, MsgUnsupportedLanguage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &recordingRunner{}
			svc := testService(t, runner)

			result := svc.Execute(context.Background(), tt.req)

			assert.Equal(t, http.StatusBadRequest, result.Status)
			assert.Equal(t, tt.message, result.Body.Error)
			assert.Equal(t, 0, runner.calls)
		})
	}
}

func TestServiceExecute(t *testing.T) {
	runner := &recordingRunner{outcome: Outcome{Kind: OutcomeSucceeded, Logs: "1\n"}}
	svc := testService(t, runner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := svc.Execute(ctx, SandboxRequest{Language: "python", Code: "print(1)"})

	assert.Equal(t, http.StatusOK, result.Status)
	require.NotNil(t, result.Body.Output)
	assert.Equal(t, "1\n", *result.Body.Output)
	assert.Equal(t, 1, runner.calls)
	assert.Equal(t, []string{"python", "-c", "print(1)"}, runner.spec.Entrypoint)
	assert.NoError(t, runner.ctxErr, "the run must not observe caller cancellation")
}

func TestServiceEndToEndWithFakeClient(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("Success", func(t *testing.T) {
		client := &fakeClient{
			steps: []statusStep{phase(PhasePending), phase(PhaseRunning), phase(PhaseSucceeded)},
			logs:  "1\n",
		}
		o := NewOrchestrator(logger, client, testOrchestratorConfig())
		svc := testService(t, o)

		result := svc.Execute(context.Background(), SandboxRequest{Language: "python", Code: "print(1)"})

		assert.Equal(t, http.StatusOK, result.Status)
		assert.Equal(t, "1\n", *result.Body.Output)
	})

	t.Run("Failure", func(t *testing.T) {
		client := &fakeClient{steps: []statusStep{phase(PhaseFailed)}, logs: "Traceback..."}
		o := NewOrchestrator(logger, client, testOrchestratorConfig())
		svc := testService(t, o)

		result := svc.Execute(context.Background(), SandboxRequest{Language: "python", Code: "1/0"})

		assert.Equal(t, http.StatusUnprocessableEntity, result.Status)
		assert.Equal(t, MsgExecutionFailed, result.Body.Error)
		assert.Equal(t, "Traceback...", *result.Body.Output)
	})

	t.Run("Timeout", func(t *testing.T) {
		cfg := testOrchestratorConfig()
		cfg.MaxWait = 30 * time.Millisecond
		client := &fakeClient{steps: []statusStep{phase(PhasePending)}}
		o := NewOrchestrator(logger, client, cfg)
		svc := testService(t, o)

		result := svc.Execute(context.Background(), SandboxRequest{Language: "sh", Code: "sleep 100"})

		assert.Equal(t, http.StatusGatewayTimeout, result.Status)
		assert.Equal(t, MsgExecutionTimedOut, result.Body.Error)
	})
}

func TestServiceLanguages(t *testing.T) {
	svc := testService(t, &recordingRunner{})
	assert.Contains(t, svc.Languages(), "python")
	assert.Contains(t, svc.Languages(), "sh")
}
