package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"portfolio-chat/internal/utils"

	"github.com/creack/pty"
)

// ExecBackend runs a local agent command once per query. The command gets
// the query as its last argument and CHAT_SESSION_ID in its environment, and
// writes one JSON event per line. It runs under a pseudo-terminal so its
// output is line buffered, in dir when set.
type ExecBackend struct {
	exec   string
	args   []string
	dir    string
	logger *utils.Logger
}

func NewExecBackend(execPath string, args []string, dir string, logger *utils.Logger) *ExecBackend {
	return &ExecBackend{exec: resolveExec(execPath), args: args, dir: dir, logger: logger}
}

// resolveExec returns the absolute path of name when it is on PATH.
func resolveExec(name string) string {
	if path, err := exec.LookPath(name); err == nil {
		return path
	}
	return name
}

func (b *ExecBackend) StartSession(ctx context.Context) (string, error) {
	if strings.TrimSpace(b.exec) == "" {
		return "", errors.New("exec backend: no agent command configured")
	}
	if _, err := exec.LookPath(b.exec); err != nil {
		return "", fmt.Errorf("exec backend: %w", err)
	}
	return utils.NewID("local"), nil
}

func (b *ExecBackend) EndSession(ctx context.Context, sessionID string) error {
	return nil
}

func (b *ExecBackend) Query(ctx context.Context, sessionID, query string) (Stream, error) {
	args := append(append([]string{}, b.args...), query)
	cmd := exec.CommandContext(ctx, b.exec, args...)
	cmd.Dir = b.dir
	cmd.Env = append(os.Environ(), "CHAT_SESSION_ID="+sessionID, "TERM=dumb")
	tty, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 50, Cols: 32000})
	if err != nil {
		return nil, fmt.Errorf("start agent command: %w", err)
	}
	b.logger.Debugf("agent command started pid=%d", cmd.Process.Pid)
	waited := make(chan error, 1)
	go func() { waited <- cmd.Wait() }()
	return &execStream{cmd: cmd, tty: tty, reader: bufio.NewReaderSize(tty, 64*1024), waited: waited}, nil
}

type execStream struct {
	cmd    *exec.Cmd
	tty    *os.File
	reader *bufio.Reader
	waited chan error

	closeOnce sync.Once
	waitErr   error
	finished  bool
}

// Next returns the next non-blank output line. The pty reports EIO once the
// child has exited; that and EOF end the stream, and a non-zero exit status
// becomes the terminal error.
func (s *execStream) Next() ([]byte, error) {
	if s.finished {
		return nil, s.endErr()
	}
	for {
		line, err := s.reader.ReadBytes('\n')
		line = bytes.TrimRight(line, "\r\n")
		if len(bytes.TrimSpace(line)) > 0 && err == nil {
			return line, nil
		}
		if err != nil {
			if len(bytes.TrimSpace(line)) > 0 {
				// final line without newline; report the end on the next call
				s.finish()
				return line, nil
			}
			if errors.Is(err, io.EOF) || errors.Is(err, syscall.EIO) || errors.Is(err, os.ErrClosed) {
				s.finish()
				return nil, s.endErr()
			}
			s.finish()
			return nil, err
		}
	}
}

func (s *execStream) finish() {
	if s.finished {
		return
	}
	s.finished = true
	s.waitErr = <-s.waited
}

func (s *execStream) endErr() error {
	if s.waitErr != nil {
		return fmt.Errorf("agent command: %w", s.waitErr)
	}
	return io.EOF
}

func (s *execStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.tty.Close()
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
	})
	return err
}
