package workload

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/me/uthreads/internal/logging"
	"github.com/me/uthreads/internal/timer"
	"github.com/me/uthreads/pkg/uthreads"
)

// runWorkload runs src on a fresh scheduler and returns the exit code and the
// workload result.
func runWorkload(t *testing.T, src string, opts ...RunnerOption) (int, Result) {
	t.Helper()
	wl, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	exit := make(chan int, 1)
	s := uthreads.New(
		uthreads.WithLogger(logging.Discard()),
		uthreads.WithTimer(timer.NewManual()),
		uthreads.WithExitFunc(func(code int) { exit <- code }),
	)
	r, err := NewRunner(s, wl, logging.Discard(), opts...)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	go func() {
		if err := s.Init(time.Millisecond); err != nil {
			t.Errorf("Init: %v", err)
			exit <- -1
			return
		}
		r.Run()
	}()

	select {
	case code := <-exit:
		return code, r.Result()
	case <-time.After(5 * time.Second):
		t.Fatal("workload did not finish")
		return 0, Result{}
	}
}

func TestRunner_Completes(t *testing.T) {
	code, res := runWorkload(t, `
name: count
threads:
  - name: counter
    instances: 3
    script: |
      for (let i = 0; i < 5; i++) { uthread.add("n", 1); uthread.yield(); }
`)
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if res.Outcome != OutcomeCompleted {
		t.Errorf("Outcome = %q, want completed", res.Outcome)
	}
	if res.Counters["n"] != 15 || res.Spawned != 3 || res.Failures != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestRunner_MutexProtectsReadModifyWrite(t *testing.T) {
	_, res := runWorkload(t, `
name: mutex
threads:
  - name: incr
    instances: 4
    script: |
      for (let i = 0; i < 3; i++) {
        uthread.lock();
        const v = uthread.get("x");
        uthread.yield();
        uthread.set("x", v + 1);
        uthread.unlock();
      }
`)
	if res.Counters["x"] != 12 {
		t.Errorf("x = %d, want 12", res.Counters["x"])
	}
	if res.Failures != 0 {
		t.Errorf("failures = %d", res.Failures)
	}
}

func TestRunner_SpawnFromScript(t *testing.T) {
	_, res := runWorkload(t, `
name: fanout
threads:
  - name: parent
    script: |
      for (let i = 0; i < 3; i++) { uthread.spawn("child"); }
  - name: child
    instances: 0
    script: uthread.add("children", 1);
`)
	if res.Counters["children"] != 3 || res.Spawned != 4 {
		t.Errorf("result = %+v, want 3 children and 4 spawns", res)
	}
}

func TestRunner_BlockAndResume(t *testing.T) {
	_, res := runWorkload(t, `
name: sleepers
threads:
  - name: sleeper
    script: |
      uthread.set("sleeper", uthread.tid);
      uthread.block();
      uthread.add("woke", 1);
  - name: waker
    script: |
      uthread.yield();
      uthread.resume(uthread.get("sleeper"));
`)
	if res.Outcome != OutcomeCompleted || res.Counters["woke"] != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestRunner_StackIsPrivateAndPersistent(t *testing.T) {
	_, res := runWorkload(t, `
name: stacks
threads:
  - name: writer
    instances: 2
    script: |
      const mem = new Uint8Array(uthread.stack());
      mem[0] = uthread.tid;
      uthread.yield();
      const again = new Uint8Array(uthread.stack());
      if (again.length === 4096 && again[0] === uthread.tid) { uthread.add("kept", 1); }
`)
	if res.Counters["kept"] != 2 || res.Failures != 0 {
		t.Errorf("result = %+v, want both threads to keep their stack byte", res)
	}
}

func TestRunner_ScriptErrorTerminatesThread(t *testing.T) {
	_, res := runWorkload(t, `
name: failing
threads:
  - name: bad
    script: throw new Error("boom");
  - name: good
    script: uthread.set("good", 1);
`)
	if res.Failures != 1 || res.Counters["good"] != 1 || res.Outcome != OutcomeCompleted {
		t.Errorf("result = %+v", res)
	}
}

func TestRunner_SchedulerErrorsAreCatchable(t *testing.T) {
	_, res := runWorkload(t, `
name: catch
threads:
  - name: t
    script: |
      try { uthread.block(0); } catch (e) { uthread.set("caught", 1); }
      try { uthread.unlock(); } catch (e) { uthread.add("caught", 1); }
`)
	if res.Counters["caught"] != 2 || res.Failures != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestRunner_Stalled(t *testing.T) {
	code, res := runWorkload(t, `
name: stall
threads:
  - name: t
    script: uthread.block();
`)
	if code != 0 || res.Outcome != OutcomeStalled {
		t.Errorf("code = %d outcome = %q, want 0 stalled", code, res.Outcome)
	}
}

func TestRunner_BudgetExhausted(t *testing.T) {
	code, res := runWorkload(t, `
name: forever
threads:
  - name: spin
    script: while (true) { uthread.yield(); }
`, WithMaxQuanta(50))
	if code != 0 || res.Outcome != OutcomeBudgetExhausted {
		t.Errorf("code = %d outcome = %q, want 0 budget_exhausted", code, res.Outcome)
	}
}

func TestRunner_SetupAndWork(t *testing.T) {
	_, res := runWorkload(t, `
name: setup
setup: |
  function bump() { uthread.add("setup", 1); }
threads:
  - name: t
    instances: 2
    script: |
      bump();
      uthread.set("acc", uthread.work(10));
      uthread.set("self", uthread.quanta() > 0 ? 1 : 0);
`)
	if res.Counters["setup"] != 2 || res.Counters["acc"] != 24 || res.Counters["self"] != 1 {
		t.Errorf("counters = %v", res.Counters)
	}
}

func TestRunner_SampleWorkloads(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("..", "..", "workloads", "*.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) == 0 {
		t.Fatal("no sample workloads found")
	}

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			code, res := runWorkload(t, string(data))
			if code != 0 || res.Outcome != OutcomeCompleted || res.Failures != 0 {
				t.Errorf("code = %d result = %+v", code, res)
			}
		})
	}
}
