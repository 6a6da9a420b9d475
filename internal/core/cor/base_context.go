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

package cor

import (
	"context"
)

// BaseContext is the map backed Context used by every workflow.
type BaseContext struct {
	data   map[string]interface{}
	errors map[string]error
	order  []string // error keys in the order they were first recorded
	ctx    context.Context
}

// NewBaseContext returns an empty context. Callers must SetContext before
// handing it to a chain.
func NewBaseContext() Context {
	return &BaseContext{
		data:   make(map[string]interface{}),
		errors: make(map[string]error),
	}
}

func (c *BaseContext) SetContext(ctx context.Context) {
	c.ctx = ctx
}

func (c *BaseContext) GetContext() context.Context {
	return c.ctx
}

func (c *BaseContext) Add(key string, value interface{}) Context {
	c.data[key] = value
	return c
}

func (c *BaseContext) Get(key string) interface{} {
	return c.data[key]
}

func (c *BaseContext) Remove(key string) {
	delete(c.data, key)
}

// AddError records err under key. A second error for the same key replaces
// the first but keeps its position.
func (c *BaseContext) AddError(key string, err error) {
	if err == nil {
		return
	}
	if _, exists := c.errors[key]; !exists {
		c.order = append(c.order, key)
	}
	c.errors[key] = err
}

func (c *BaseContext) GetErrors() map[string]error {
	return c.errors
}

func (c *BaseContext) FirstError() error {
	if len(c.order) == 0 {
		return nil
	}
	return c.errors[c.order[0]]
}

func (c *BaseContext) HasErrors() bool {
	return len(c.errors) > 0
}
