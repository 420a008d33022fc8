// Package clitest runs skill programs in-process for tests.
package clitest

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/config"
)

// Result is the outcome of one invocation.
type Result struct {
	Stdout string
	Stderr string
	Code   int
}

// Options adjusts the environment of a run.
type Options struct {
	HTTPClient *http.Client
	Stdin      string
	Now        func() time.Time
}

// Config returns the default configuration with the state directory
// pointed at a fresh temp dir. The process environment is not read.
func Config(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Home = t.TempDir()
	return cfg
}

// Run executes p with argv against cfg.
func Run(t *testing.T, p *cli.Program, cfg *config.Config, opts Options, argv ...string) Result {
	t.Helper()

	var stdout, stderr bytes.Buffer
	env := &cli.Env{
		Config:     cfg,
		Stdout:     &stdout,
		Stderr:     &stderr,
		Stdin:      strings.NewReader(opts.Stdin),
		HTTPClient: opts.HTTPClient,
		Now:        opts.Now,
	}
	code := p.Run(context.Background(), argv, env)
	return Result{Stdout: stdout.String(), Stderr: stderr.String(), Code: code}
}
