package relay

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

const stopGracePeriod = 5 * time.Second

// ExecLauncher runs ffmpeg to copy the source stream to the destination
// without transcoding.
type ExecLauncher struct {
	Path string
}

func NewExecLauncher(path string) *ExecLauncher {
	if path == "" {
		path = "ffmpeg"
	}
	return &ExecLauncher{Path: path}
}

func (l *ExecLauncher) args(source, destination string) []string {
	return []string{"-hide_banner", "-loglevel", "error", "-i", source, "-c", "copy", "-f", "flv", destination}
}

func (l *ExecLauncher) Start(ctx context.Context, source, destination string) (Task, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, l.Path, l.args(source, destination)...)
	// 종료 요청은 SIGINT로 보내고, 유예 시간이 지나면 강제 종료
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = stopGracePeriod

	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %s: %w", ErrLaunch, l.Path, err)
	}

	t := &execTask{
		cancel: cancel,
		done:   make(chan struct{}),
		logger: slog.With("pid", cmd.Process.Pid, "destination", destination),
	}
	t.logger.Info("Relay process started", "source", source)

	logged := make(chan struct{})
	go func() {
		defer close(logged)
		t.logStderr(stderr)
	}()
	go t.wait(cmd, logged)
	return t, nil
}

type execTask struct {
	cancel context.CancelFunc
	done   chan struct{}
	logger *slog.Logger
}

func (t *execTask) logStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		t.logger.Debug("ffmpeg", "line", scanner.Text())
	}
}

// stderr를 끝까지 읽은 뒤에 Wait를 호출해야 한다
func (t *execTask) wait(cmd *exec.Cmd, logged <-chan struct{}) {
	<-logged
	if err := cmd.Wait(); err != nil {
		t.logger.Warn("Relay process exited", "err", err)
	} else {
		t.logger.Info("Relay process exited")
	}
	close(t.done)
}

func (t *execTask) Stop() error {
	t.cancel()
	<-t.done
	return nil
}

func (t *execTask) Done() <-chan struct{} {
	return t.done
}
