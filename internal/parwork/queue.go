// Copyright 2025 The Loom Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package parwork provides the bounded worker Queue the build driver's
// parallel regions are built on (SPEC_FULL.md §4.J): units of work can be
// Add-ed to it as they become ready, and Idle reports when the pool has
// drained.
//
// The API shape is modeled on how cuelang.org/go/internal/par's Queue is
// driven from internal/mod/modpkgload/pkgload.go (pkgs.work.Add,
// <-pkgs.work.Idle()) — that package itself was not part of the retrieved
// reference set, so this is a fresh implementation of the observed usage
// pattern rather than a copy.
package parwork

import (
	"runtime"
	"sync"
)

// Queue runs work items on a bounded number of goroutines. Unlike a plain
// sync.WaitGroup fan-out, items may be Add-ed after the queue has already
// started draining — this is what lets the compile driver feed newly ready
// modules into the same pool as dependencies finish, rather than requiring
// the whole work-list up front.
type Queue struct {
	sem  chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewQueue creates a Queue that runs at most maxActive work items at once.
// maxActive <= 0 defaults to runtime.GOMAXPROCS(0).
func NewQueue(maxActive int) *Queue {
	if maxActive <= 0 {
		maxActive = runtime.GOMAXPROCS(0)
	}
	return &Queue{sem: make(chan struct{}, maxActive)}
}

// Add enqueues f to run on a worker goroutine. It returns immediately; f
// always runs on its own goroutine, which waits until a slot opens up.
func (q *Queue) Add(f func()) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.sem <- struct{}{}
		defer func() { <-q.sem }()
		f()
	}()
}

// Idle returns a channel that is closed once every Add-ed item (as of the
// call to Idle) has completed and no further Add calls are outstanding.
// Callers that need to wait for a dynamically growing queue should call
// Idle only after the last Add, the same way modpkgload waits on
// pkgs.work.Idle() once package discovery has stopped scheduling work.
func (q *Queue) Idle() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	return done
}
