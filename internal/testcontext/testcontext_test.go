// Copyright 2026 The zb Authors
// SPDX-License-Identifier: MIT

package testcontext

import (
	"testing"

	"zombiezen.com/go/log"
)

func TestNew(t *testing.T) {
	ctx, cancel := New(t)
	defer cancel()

	if err := ctx.Err(); err != nil {
		t.Fatalf("ctx.Err() = %v", err)
	}
	if want, ok := t.Deadline(); ok {
		if got, ok := ctx.Deadline(); !ok || !got.Equal(want) {
			t.Errorf("ctx.Deadline() = %v, %t; want %v, true", got, ok, want)
		}
	}
	log.Debugf(ctx, "logged through the test")

	cancel()
	if _, ok := t.Deadline(); ok && ctx.Err() == nil {
		t.Error("ctx.Err() = <nil> after cancel")
	}
}
