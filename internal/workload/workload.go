// Package workload runs scripted thread bodies on the green-thread scheduler.
// A workload file lists thread templates whose bodies are JavaScript; every
// green thread gets its own goja runtime and a `uthread` object bound to the
// scheduler.
package workload

import (
	"errors"
	"fmt"
	"os"

	"github.com/dop251/goja"
	"gopkg.in/yaml.v3"
)

// Workload is a parsed workload file.
type Workload struct {
	Name         string       `yaml:"name"`
	Description  string       `yaml:"description,omitempty"`
	QuantumUsecs int64        `yaml:"quantum_usecs,omitempty"` // overrides the configured quantum
	MaxQuanta    uint64       `yaml:"max_quanta,omitempty"`    // stop after this many quanta (0 = unlimited)
	Setup        string       `yaml:"setup,omitempty"`         // script run in every thread before its body
	Threads      []ThreadSpec `yaml:"threads"`
}

// ThreadSpec is a thread template.
type ThreadSpec struct {
	Name      string `yaml:"name"`
	Instances *int   `yaml:"instances,omitempty"` // spawned at start (default 1; 0 = only via uthread.spawn)
	Script    string `yaml:"script"`
}

// InitialInstances returns how many threads of this template start with the
// workload.
func (t ThreadSpec) InitialInstances() int {
	if t.Instances == nil {
		return 1
	}
	return *t.Instances
}

// Load reads and validates a workload file.
func Load(path string) (*Workload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workload %s: %w", path, err)
	}
	wl, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("workload %s: %w", path, err)
	}
	return wl, nil
}

// Parse decodes and validates workload YAML.
func Parse(data []byte) (*Workload, error) {
	var wl Workload
	if err := yaml.Unmarshal(data, &wl); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if err := wl.Validate(); err != nil {
		return nil, err
	}
	return &wl, nil
}

// Validate checks names, instance counts and that every script compiles.
func (w *Workload) Validate() error {
	var errs []error
	if w.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if w.QuantumUsecs < 0 {
		errs = append(errs, fmt.Errorf("quantum_usecs must not be negative, got %d", w.QuantumUsecs))
	}
	if len(w.Threads) == 0 {
		errs = append(errs, errors.New("at least one thread is required"))
	}
	if w.Setup != "" {
		if _, err := goja.Compile("setup", w.Setup, false); err != nil {
			errs = append(errs, fmt.Errorf("setup: %w", err))
		}
	}

	seen := make(map[string]bool)
	initial := 0
	for i, t := range w.Threads {
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("threads[%d]: name is required", i))
		} else if seen[t.Name] {
			errs = append(errs, fmt.Errorf("threads[%d]: duplicate name %q", i, t.Name))
		}
		seen[t.Name] = true
		if t.InitialInstances() < 0 {
			errs = append(errs, fmt.Errorf("thread %q: instances must not be negative", t.Name))
		}
		initial += t.InitialInstances()
		if t.Script == "" {
			errs = append(errs, fmt.Errorf("thread %q: script is required", t.Name))
		} else if _, err := goja.Compile(t.Name, t.Script, false); err != nil {
			errs = append(errs, fmt.Errorf("thread %q: %w", t.Name, err))
		}
	}
	if len(w.Threads) > 0 && initial <= 0 {
		errs = append(errs, errors.New("no thread starts with the workload"))
	}
	return errors.Join(errs...)
}

// Template returns the thread template called name.
func (w *Workload) Template(name string) (*ThreadSpec, bool) {
	for i := range w.Threads {
		if w.Threads[i].Name == name {
			return &w.Threads[i], true
		}
	}
	return nil, false
}
