package workload

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dop251/goja"
)

// binding builds the `uthread` object of one thread. Scheduler errors are
// thrown as JavaScript exceptions.
func (r *Runner) binding(vm *goja.Runtime, tid int, name string, logger *slog.Logger) (*goja.Object, error) {
	check := func(err error) {
		if err != nil {
			panic(vm.NewGoError(err))
		}
	}

	obj := vm.NewObject()
	var bindErr error
	set := func(key string, v any) {
		if err := obj.Set(key, v); err != nil && bindErr == nil {
			bindErr = fmt.Errorf("bind %s: %w", key, err)
		}
	}

	set("tid", tid)
	set("name", name)

	set("spawn", func(template string) int {
		child, err := r.spawn(template)
		check(err)
		return child
	})
	set("terminate", func(call goja.FunctionCall) goja.Value {
		target := tid
		if len(call.Arguments) > 0 {
			target = int(call.Argument(0).ToInteger())
		}
		check(r.sched.Terminate(target))
		return goja.Undefined()
	})
	set("block", func(call goja.FunctionCall) goja.Value {
		target := tid
		if len(call.Arguments) > 0 {
			target = int(call.Argument(0).ToInteger())
		}
		check(r.sched.Block(target))
		return goja.Undefined()
	})
	set("resume", func(target int) {
		check(r.sched.Resume(target))
	})
	// The thread's private stack memory, shared with the script as an
	// ArrayBuffer. It keeps its contents across context switches.
	set("stack", func() goja.Value {
		return vm.ToValue(vm.NewArrayBuffer(r.sched.Stack()))
	})
	set("lock", func() {
		check(r.sched.MutexLock())
	})
	set("unlock", func() {
		check(r.sched.MutexUnlock())
	})
	set("yield", func() {
		check(r.sched.Yield())
	})
	set("checkpoint", func() {
		r.sched.Checkpoint()
	})
	set("work", func(n int) int64 {
		// Busy loop with a safe point per iteration, so the timer can
		// preempt it.
		var acc int64
		for i := 0; i < n; i++ {
			acc += int64(i % 7)
			r.sched.Checkpoint()
		}
		return acc
	})
	set("quanta", func(call goja.FunctionCall) goja.Value {
		target := tid
		if len(call.Arguments) > 0 {
			target = int(call.Argument(0).ToInteger())
		}
		q, err := r.sched.QuantaOf(target)
		check(err)
		return vm.ToValue(q)
	})
	set("totalQuanta", func() uint64 {
		return r.sched.TotalQuanta()
	})
	set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			parts[i] = a.String()
		}
		logger.Info(strings.Join(parts, " "))
		return goja.Undefined()
	})
	set("get", func(key string) int64 {
		return r.counters.Get(key)
	})
	set("set", func(key string, v int64) {
		r.counters.Set(key, v)
	})
	set("add", func(key string, delta int64) int64 {
		return r.counters.Add(key, delta)
	})
	if bindErr != nil {
		return nil, bindErr
	}
	return obj, nil
}
