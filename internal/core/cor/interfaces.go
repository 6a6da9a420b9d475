// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cor (Chain of Responsibility) holds the small pipeline framework the
// song analysis workflow is assembled from. A workflow is a Chain of Commands
// that share one Context: every command reads its input from the context,
// writes its output back, and records failures instead of returning them.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Keys used by BaseChain to pipe the output of one command into the next.
const (
	// CtxIn holds the primary input of the command about to run.
	CtxIn = "__IN__"
	// CtxOut is where a command leaves its primary output.
	CtxOut = "__OUT__"
)

// Context is the property bag carried through a single workflow execution.
type Context interface {
	// SetContext replaces the Go context (deadline, cancellation, active span).
	SetContext(ctx context.Context)
	// GetContext returns the Go context for the step currently running.
	GetContext() context.Context

	// Add stores a value under key and returns the Context for chaining.
	Add(key string, value interface{}) Context
	// Get returns the value stored under key, or nil.
	Get(key string) interface{}
	// Remove deletes key.
	Remove(key string)

	// AddError records a failure, normally keyed by the command name.
	AddError(key string, err error)
	// GetErrors returns every recorded failure keyed by its source.
	GetErrors() map[string]error
	// FirstError returns the earliest recorded failure, or nil.
	FirstError() error
	// HasErrors reports whether any failure was recorded.
	HasErrors() bool
}

// Executable is anything that can run against a Context.
type Executable interface {
	Execute(context Context)
}

// Command is one step of a workflow.
type Command interface {
	Executable

	GetName() string
	GetInputParam() string
	GetOutputParam() string

	// IsExecutable is the precondition check the chain runs before Execute.
	IsExecutable(context Context) bool

	GetTracer() trace.Tracer
	GetMeter() metric.Meter
	GetSuccessCounter() metric.Int64Counter
	GetErrorCounter() metric.Int64Counter
}

// Chain is an ordered list of commands, and is itself a Command so chains nest.
type Chain interface {
	Command

	// ContinueOnFailure keeps the chain running after a command records an error.
	ContinueOnFailure(bool) Chain
	// AddCommand appends a step.
	AddCommand(command Command) Chain
}
