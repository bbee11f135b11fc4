package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/gaspardpetit/figbridge/internal/config"
	"github.com/gaspardpetit/figbridge/internal/transport"
	"github.com/gaspardpetit/figbridge/internal/ui"
)

func dialer(cfg config.UIConfig) ui.Dialer {
	if cfg.Exec != "" {
		return func(ctx context.Context) (transport.Transport, error) {
			return spawn(ctx, cfg.Exec)
		}
	}
	return func(ctx context.Context) (transport.Transport, error) {
		return transport.Dial(ctx, cfg.HostURL, nil)
	}
}

// child closes the host's stdin and reaps it.
type child struct {
	stdin io.Closer
	cmd   *exec.Cmd
}

func (c *child) Close() error {
	err := c.stdin.Close()
	if werr := c.cmd.Wait(); werr != nil && err == nil {
		var exitErr *exec.ExitError
		if !errors.As(werr, &exitErr) {
			err = werr
		}
	}
	return err
}

// spawn starts a host in stdio mode. Its stderr is passed through for logs.
func spawn(ctx context.Context, command string) (transport.Transport, error) {
	args := strings.Fields(command)
	if len(args) == 0 {
		return nil, errors.New("empty host command")
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return transport.NewStdio(stdout, stdin, &child{stdin: stdin, cmd: cmd}), nil
}
