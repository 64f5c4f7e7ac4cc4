package sandbox

import (
	"context"
	"sync"
)

type statusStep struct {
	status UnitStatus
	err    error
	panic  bool
}

// fakeClient is a scripted LifecycleClient. Status returns the steps in
// order and repeats the last one once they run out.
type fakeClient struct {
	mu sync.Mutex

	createErr   error
	createBlock bool
	steps       []statusStep
	logs        string
	logsErr     error
	logsPanic   bool
	deleteErr   error

	createCalls int
	statusCalls int
	logsCalls   int
	deleteCalls int
	jobs        []*Job
}

var _ LifecycleClient = (*fakeClient)(nil)

func (f *fakeClient) Create(ctx context.Context, job *Job) error {
	f.mu.Lock()
	f.createCalls++
	f.jobs = append(f.jobs, job)
	block := f.createBlock
	err := f.createErr
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (f *fakeClient) Status(ctx context.Context, _ *Job) (UnitStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.statusCalls++
	if len(f.steps) == 0 {
		return UnitStatus{Phase: PhasePending}, nil
	}
	idx := min(f.statusCalls-1, len(f.steps)-1)
	step := f.steps[idx]
	if step.panic {
		panic("status exploded")
	}
	return step.status, step.err
}

func (f *fakeClient) Logs(_ context.Context, _ *Job) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.logsCalls++
	if f.logsPanic {
		panic("logs exploded")
	}
	return f.logs, f.logsErr
}

func (f *fakeClient) Delete(_ context.Context, _ *Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deleteCalls++
	return f.deleteErr
}

func (f *fakeClient) counts() (create, status, logs, del int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls, f.statusCalls, f.logsCalls, f.deleteCalls
}

func phase(p Phase) statusStep {
	return statusStep{status: UnitStatus{Phase: p}}
}

func waiting(reason, message string) statusStep {
	return statusStep{status: UnitStatus{Phase: PhasePending, WaitingReason: reason, WaitingMessage: message}}
}
