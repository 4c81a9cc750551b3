// Copyright 2025 The osmo-dev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command osmo-dev generates and drives the Makefile that builds a set of
// interdependent Osmocom projects from source.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/osmocom/osmo-dev/cmd/osmo-dev/internal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := internal.Execute(ctx)
	stop()
	os.Exit(code)
}
