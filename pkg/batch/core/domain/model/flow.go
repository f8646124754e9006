package model

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
)

// FlowDefinition is the transition table of a job: a set of named steps, one start step, a
// default successor per step and conditional successors keyed by (step, exit status).
//
// Edges are collected with AddStep, Next and On; structural problems are reported together by
// Validate, which runners call before the first step executes.
type FlowDefinition struct {
	Name      string
	StartStep string

	steps        []string
	stepSet      map[string]struct{}
	defaults     map[string]string
	conditionals map[string]map[ExitStatus]string
	buildErr     *multierror.Error
}

// NewFlowDefinition creates an empty flow whose execution begins at startStep.
func NewFlowDefinition(name, startStep string) *FlowDefinition {
	return &FlowDefinition{
		Name:         name,
		StartStep:    startStep,
		stepSet:      make(map[string]struct{}),
		defaults:     make(map[string]string),
		conditionals: make(map[string]map[ExitStatus]string),
	}
}

// AddStep declares a step node.
func (fd *FlowDefinition) AddStep(name string) *FlowDefinition {
	if name == "" {
		fd.buildErr = multierror.Append(fd.buildErr, fmt.Errorf("flow '%s': step name cannot be empty", fd.Name))
		return fd
	}
	if _, exists := fd.stepSet[name]; exists {
		fd.buildErr = multierror.Append(fd.buildErr, fmt.Errorf("flow '%s': step '%s' declared twice", fd.Name, name))
		return fd
	}
	fd.stepSet[name] = struct{}{}
	fd.steps = append(fd.steps, name)
	return fd
}

// Next declares the unconditional successor of from.
func (fd *FlowDefinition) Next(from, to string) *FlowDefinition {
	if existing, ok := fd.defaults[from]; ok {
		fd.buildErr = multierror.Append(fd.buildErr,
			fmt.Errorf("flow '%s': ambiguous default transition from '%s' ('%s' and '%s')", fd.Name, from, existing, to))
		return fd
	}
	fd.defaults[from] = to
	return fd
}

// On declares that from continues with to when it ends with exit status on.
func (fd *FlowDefinition) On(from string, on ExitStatus, to string) *FlowDefinition {
	switch {
	case on == "":
		fd.buildErr = multierror.Append(fd.buildErr, fmt.Errorf("flow '%s': conditional transition from '%s' has no exit status", fd.Name, from))
		return fd
	case on.IsFailed():
		fd.buildErr = multierror.Append(fd.buildErr,
			fmt.Errorf("flow '%s': transition from '%s' on %s is not allowed, a failed step always ends the job", fd.Name, from, on))
		return fd
	}
	byStatus, ok := fd.conditionals[from]
	if !ok {
		byStatus = make(map[ExitStatus]string)
		fd.conditionals[from] = byStatus
	}
	if existing, dup := byStatus[on]; dup {
		fd.buildErr = multierror.Append(fd.buildErr,
			fmt.Errorf("flow '%s': ambiguous transition from '%s' on %s ('%s' and '%s')", fd.Name, from, on, existing, to))
		return fd
	}
	byStatus[on] = to
	return fd
}

// Steps returns the declared step names in declaration order.
func (fd *FlowDefinition) Steps() []string {
	out := make([]string, len(fd.steps))
	copy(out, fd.steps)
	return out
}

// HasStep reports whether name is declared.
func (fd *FlowDefinition) HasStep(name string) bool {
	_, ok := fd.stepSet[name]
	return ok
}

// NextStep returns the step that follows from when it ended with status.
// The conditional edge for the exact status wins over the default edge. ok is false when the
// flow ends after from.
func (fd *FlowDefinition) NextStep(from string, status ExitStatus) (next string, ok bool) {
	if byStatus, found := fd.conditionals[from]; found {
		if to, hit := byStatus[status]; hit {
			return to, true
		}
	}
	to, ok := fd.defaults[from]
	return to, ok
}

// Validate reports every structural problem of the flow: build errors, a missing or unknown
// start step, edges that reference undeclared steps and steps unreachable from the start.
func (fd *FlowDefinition) Validate() error {
	var result *multierror.Error
	if fd.buildErr != nil {
		result = multierror.Append(result, fd.buildErr.Errors...)
	}

	if fd.StartStep == "" {
		result = multierror.Append(result, fmt.Errorf("flow '%s': no start step", fd.Name))
	} else if !fd.HasStep(fd.StartStep) {
		result = multierror.Append(result, fmt.Errorf("flow '%s': start step '%s' is not declared", fd.Name, fd.StartStep))
	}

	for _, from := range sortedKeys(fd.defaults) {
		result = fd.checkEdge(result, from, fd.defaults[from])
	}
	for _, from := range sortedKeys(fd.conditionals) {
		for _, status := range sortedStatuses(fd.conditionals[from]) {
			result = fd.checkEdge(result, from, fd.conditionals[from][status])
		}
	}

	if fd.HasStep(fd.StartStep) {
		reachable := fd.reachableFrom(fd.StartStep)
		for _, name := range fd.steps {
			if _, ok := reachable[name]; !ok {
				result = multierror.Append(result, fmt.Errorf("flow '%s': step '%s' is unreachable from '%s'", fd.Name, name, fd.StartStep))
			}
		}
	}
	return result.ErrorOrNil()
}

func (fd *FlowDefinition) checkEdge(result *multierror.Error, from, to string) *multierror.Error {
	if !fd.HasStep(from) {
		result = multierror.Append(result, fmt.Errorf("flow '%s': transition from undeclared step '%s'", fd.Name, from))
	}
	if !fd.HasStep(to) {
		result = multierror.Append(result, fmt.Errorf("flow '%s': transition from '%s' to undeclared step '%s'", fd.Name, from, to))
	}
	return result
}

func (fd *FlowDefinition) reachableFrom(start string) map[string]struct{} {
	seen := map[string]struct{}{start: {}}
	queue := []string{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		var targets []string
		if to, ok := fd.defaults[current]; ok {
			targets = append(targets, to)
		}
		for _, to := range fd.conditionals[current] {
			targets = append(targets, to)
		}
		for _, to := range targets {
			if _, ok := seen[to]; !ok {
				seen[to] = struct{}{}
				queue = append(queue, to)
			}
		}
	}
	return seen
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedStatuses(m map[ExitStatus]string) []ExitStatus {
	keys := make([]ExitStatus, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
