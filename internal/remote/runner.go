// Copyright (c) 2025 Darkistan
// Routermaster - Telegram gateway for remote router script execution
// This source code is licensed under the MIT license found in the LICENSE file.

// package remote runs named scripts on routers over SSH and classifies
// failures so callers can message users precisely. Whatever the remote
// side prints is returned verbatim; this layer does not interpret
// script output.
package remote

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/darkistan/routermaster/internal/logging"
	"github.com/darkistan/routermaster/internal/model"
	"golang.org/x/crypto/ssh"
)

// runScriptCommand is the RouterOS invocation for a named script.
const runScriptCommand = "/system script run %s"

// ConnectionConfig bounds the two slow parts of an execution: opening
// the connection and waiting for the script to finish.
type ConnectionConfig struct {
	DialTimeout time.Duration
	ExecTimeout time.Duration
}

// DefaultConnectionConfig returns the standard timeouts.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		DialTimeout: 10 * time.Second,
		ExecTimeout: 30 * time.Second,
	}
}

// sshSessionIface abstracts *ssh.Session for tests.
type sshSessionIface interface {
	CombinedOutput(cmd string) ([]byte, error)
	Close() error
}

// sshClientIface abstracts *ssh.Client for tests.
type sshClientIface interface {
	NewSession() (sshSessionIface, error)
	Close() error
}

type realClient struct {
	c *ssh.Client
}

func (r *realClient) NewSession() (sshSessionIface, error) {
	return r.c.NewSession()
}

func (r *realClient) Close() error { return r.c.Close() }

// sshDial is the dial seam; tests replace it to simulate transport
// behavior without a network.
var sshDial = func(network, addr string, cfg *ssh.ClientConfig) (sshClientIface, error) {
	c, err := ssh.Dial(network, addr, cfg)
	if err != nil {
		return nil, err
	}
	return &realClient{c: c}, nil
}

// Runner executes scripts on remote routers with password auth.
type Runner struct {
	config ConnectionConfig
}

// NewRunner returns a runner with the given timeouts; zero fields fall
// back to the defaults.
func NewRunner(cfg ConnectionConfig) *Runner {
	def := DefaultConnectionConfig()
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = def.ExecTimeout
	}
	return &Runner{config: cfg}
}

// Run executes the named script on the router described by conn and
// returns its combined output. Errors are always classified; an expired
// context or exec timeout is reported as unreachable.
func (r *Runner) Run(ctx context.Context, conn model.ConnectionInfo, script string) (string, error) {
	addr := net.JoinHostPort(conn.Address, strconv.Itoa(conn.Port))

	cfg := &ssh.ClientConfig{
		User: conn.Username,
		Auth: []ssh.AuthMethod{ssh.Password(conn.Password)},
		// Router fleets are provisioned out-of-band and reinstalled
		// often enough that pinned host keys churn constantly; the
		// password already scopes access to the operator's network.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         r.config.DialTimeout,
	}

	client, err := sshDial("tcp", addr, cfg)
	if err != nil {
		cerr := Classify(err)
		logging.Errorf("remote: dial %s failed (%s): %v", addr, cerr.Class, err)
		return "", cerr
	}
	defer client.Close()

	sess, err := client.NewSession()
	if err != nil {
		cerr := Classify(err)
		logging.Errorf("remote: session on %s failed (%s): %v", addr, cerr.Class, err)
		return "", cerr
	}
	defer sess.Close()

	execCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, r.config.ExecTimeout)
		defer cancel()
	}

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := sess.CombinedOutput(fmt.Sprintf(runScriptCommand, script))
		done <- result{out: out, err: err}
	}()

	select {
	case <-execCtx.Done():
		// Close the client to unblock the session goroutine.
		client.Close()
		cerr := &Error{Class: ClassUnreachable, Err: execCtx.Err()}
		logging.Errorf("remote: script %q on %s timed out: %v", script, addr, execCtx.Err())
		return "", cerr
	case res := <-done:
		if res.err != nil {
			cerr := Classify(res.err)
			logging.Errorf("remote: script %q on %s failed (%s): %v", script, addr, cerr.Class, res.err)
			return string(res.out), cerr
		}
		return string(res.out), nil
	}
}
