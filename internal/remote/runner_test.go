// Copyright (c) 2025 Darkistan
// Routermaster - Telegram gateway for remote router script execution
// This source code is licensed under the MIT license found in the LICENSE file.

package remote

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/darkistan/routermaster/internal/model"
)

type fakeSession struct {
	out   []byte
	err   error
	delay time.Duration
	cmd   string
}

func (s *fakeSession) CombinedOutput(cmd string) ([]byte, error) {
	s.cmd = cmd
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.out, s.err
}

func (s *fakeSession) Close() error { return nil }

type fakeClient struct {
	session *fakeSession
	sessErr error
	closed  bool
}

func (c *fakeClient) NewSession() (sshSessionIface, error) {
	if c.sessErr != nil {
		return nil, c.sessErr
	}
	return c.session, nil
}

func (c *fakeClient) Close() error {
	c.closed = true
	return nil
}

func withDial(t *testing.T, dial func(network, addr string, cfg *ssh.ClientConfig) (sshClientIface, error)) {
	t.Helper()
	orig := sshDial
	sshDial = dial
	t.Cleanup(func() { sshDial = orig })
}

var testConn = model.ConnectionInfo{
	Address:  "10.0.0.1",
	Username: "admin",
	Password: "secret",
	Port:     2222,
}

func TestRunSendsScriptCommand(t *testing.T) {
	sess := &fakeSession{out: []byte("ok\n")}
	client := &fakeClient{session: sess}

	var dialedAddr string
	var dialedCfg *ssh.ClientConfig
	withDial(t, func(network, addr string, cfg *ssh.ClientConfig) (sshClientIface, error) {
		dialedAddr = addr
		dialedCfg = cfg
		return client, nil
	})

	r := NewRunner(ConnectionConfig{})
	out, err := r.Run(context.Background(), testConn, "reboot")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "ok\n" {
		t.Fatalf("out = %q", out)
	}
	if sess.cmd != "/system script run reboot" {
		t.Fatalf("cmd = %q", sess.cmd)
	}
	if dialedAddr != "10.0.0.1:2222" {
		t.Fatalf("dialed %q", dialedAddr)
	}
	if dialedCfg.User != "admin" {
		t.Fatalf("user = %q", dialedCfg.User)
	}
	if !client.closed {
		t.Fatalf("client not closed")
	}
}

func TestRunDialFailureClassified(t *testing.T) {
	withDial(t, func(network, addr string, cfg *ssh.ClientConfig) (sshClientIface, error) {
		return nil, errors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password]")
	})

	r := NewRunner(ConnectionConfig{})
	_, err := r.Run(context.Background(), testConn, "reboot")
	if ClassOf(err) != ClassAuth {
		t.Fatalf("class = %v, want ClassAuth", ClassOf(err))
	}
}

func TestRunSessionFailure(t *testing.T) {
	withDial(t, func(network, addr string, cfg *ssh.ClientConfig) (sshClientIface, error) {
		return &fakeClient{sessErr: errors.New("ssh: rejected: administratively prohibited")}, nil
	})

	r := NewRunner(ConnectionConfig{})
	_, err := r.Run(context.Background(), testConn, "reboot")
	if ClassOf(err) != ClassTransport {
		t.Fatalf("class = %v, want ClassTransport", ClassOf(err))
	}
}

func TestRunScriptErrorKeepsOutput(t *testing.T) {
	sess := &fakeSession{out: []byte("failure: no such script"), err: errors.New("ssh: command exited with status 1")}
	withDial(t, func(network, addr string, cfg *ssh.ClientConfig) (sshClientIface, error) {
		return &fakeClient{session: sess}, nil
	})

	r := NewRunner(ConnectionConfig{})
	out, err := r.Run(context.Background(), testConn, "ghost")
	if err == nil {
		t.Fatalf("expected error")
	}
	if out != "failure: no such script" {
		t.Fatalf("output lost on failure: %q", out)
	}
}

func TestRunExecTimeoutIsUnreachable(t *testing.T) {
	sess := &fakeSession{out: []byte("late"), delay: 200 * time.Millisecond}
	client := &fakeClient{session: sess}
	withDial(t, func(network, addr string, cfg *ssh.ClientConfig) (sshClientIface, error) {
		return client, nil
	})

	r := NewRunner(ConnectionConfig{ExecTimeout: 20 * time.Millisecond})
	_, err := r.Run(context.Background(), testConn, "slow")
	if ClassOf(err) != ClassUnreachable {
		t.Fatalf("class = %v, want ClassUnreachable", ClassOf(err))
	}
	if !client.closed {
		t.Fatalf("client should be closed on timeout")
	}
}

func TestRunHonorsCallerDeadline(t *testing.T) {
	sess := &fakeSession{out: []byte("late"), delay: 200 * time.Millisecond}
	withDial(t, func(network, addr string, cfg *ssh.ClientConfig) (sshClientIface, error) {
		return &fakeClient{session: sess}, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// ExecTimeout is generous; the caller's deadline must win.
	r := NewRunner(ConnectionConfig{ExecTimeout: time.Minute})
	start := time.Now()
	_, err := r.Run(ctx, testConn, "slow")
	if ClassOf(err) != ClassUnreachable {
		t.Fatalf("class = %v, want ClassUnreachable", ClassOf(err))
	}
	if time.Since(start) > 150*time.Millisecond {
		t.Fatalf("caller deadline ignored")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorClass
	}{
		{errors.New("ssh: unable to authenticate, attempted methods [none password]"), ClassAuth},
		{errors.New("permission denied (password)"), ClassAuth},
		{errors.New("ssh: handshake failed: ssh: no supported methods remain"), ClassAuth},
		{errors.New("dial tcp 10.0.0.1:22: i/o timeout"), ClassUnreachable},
		{errors.New("dial tcp 10.0.0.1:22: connect: connection refused"), ClassUnreachable},
		{errors.New("dial tcp: lookup router.lan: no such host"), ClassUnreachable},
		{context.DeadlineExceeded, ClassUnreachable},
		{errors.New("ssh: handshake failed: EOF"), ClassTransport},
		{errors.New("ssh: rejected: administratively prohibited"), ClassTransport},
		{errors.New("something odd happened"), ClassUnknown},
	}
	for _, tc := range cases {
		if got := Classify(tc.err).Class; got != tc.want {
			t.Errorf("Classify(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestClassifyIdempotent(t *testing.T) {
	inner := &Error{Class: ClassAuth, Err: errors.New("unable to authenticate")}
	wrapped := fmt.Errorf("run script: %w", inner)
	if got := Classify(wrapped); got.Class != ClassAuth {
		t.Fatalf("class = %v, want ClassAuth", got.Class)
	}
	if ClassOf(wrapped) != ClassAuth {
		t.Fatalf("ClassOf should unwrap")
	}
}
