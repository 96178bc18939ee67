package project

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grovetools/devdash/command"
	"github.com/grovetools/devdash/config"
	"github.com/grovetools/devdash/pkg/platform"
	"github.com/grovetools/devdash/pkg/process"
	"github.com/sirupsen/logrus"
)

// Spawned is a started launch.
type Spawned struct {
	// PID of the spawned process.
	PID int
	// Tracked is true when PID is the dev server itself. A terminal opener
	// exits as soon as the window is up and is not tracked.
	Tracked bool
	// Wait blocks until the process exits and returns its exit error.
	Wait func() error
}

// Launcher starts a project's dev server.
type Launcher interface {
	Launch(ctx context.Context, name, dir string, port int) (*Spawned, error)
}

// ProcessLauncher spawns launches through a command.Executor, either as a
// detached background process with captured output or in a new terminal
// window.
type ProcessLauncher struct {
	executor command.Executor
	adapter  platform.Adapter
	logDir   string
	logger   *logrus.Entry

	mu      sync.RWMutex
	mode    string
	command []string
}

// NewProcessLauncher creates a launcher writing captured output under logDir.
func NewProcessLauncher(executor command.Executor, adapter platform.Adapter, cfg config.LaunchConfig, logDir string, logger *logrus.Entry) *ProcessLauncher {
	l := &ProcessLauncher{executor: executor, adapter: adapter, logDir: logDir, logger: logger}
	l.Configure(cfg)
	return l
}

// Configure applies a reloaded launch section.
func (l *ProcessLauncher) Configure(cfg config.LaunchConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mode = cfg.Mode
	l.command = append([]string(nil), cfg.Command...)
	if len(l.command) == 0 {
		l.command = config.DefaultLaunchCommand()
	}
}

// LogPath returns the capture file of name.
func (l *ProcessLauncher) LogPath(name string) string {
	return filepath.Join(l.logDir, name+".log")
}

// Launch implements Launcher.
func (l *ProcessLauncher) Launch(ctx context.Context, name, dir string, port int) (*Spawned, error) {
	l.mu.RLock()
	mode, argv := l.mode, l.command
	l.mu.RUnlock()

	if mode == config.LaunchModeTerminal {
		return l.launchTerminal(dir, argv)
	}
	return l.launchBackground(name, dir, port, argv)
}

func (l *ProcessLauncher) launchTerminal(dir string, argv []string) (*Spawned, error) {
	spec, err := l.adapter.TerminalLaunch(dir, argv)
	if err != nil {
		return nil, err
	}
	cmd := l.executor.Command(spec.Name, spec.Args...)
	cmd.Dir = dir
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("open terminal: %w", err)
	}
	return &Spawned{PID: cmd.Process.Pid, Wait: cmd.Wait}, nil
}

func (l *ProcessLauncher) launchBackground(name, dir string, port int, argv []string) (*Spawned, error) {
	if err := os.MkdirAll(l.logDir, 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.OpenFile(l.LogPath(name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open launch log: %w", err)
	}

	// The dev server outlives the request, so it is not bound to its context.
	cmd := l.executor.CommandContext(context.Background(), argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "PORT="+strconv.Itoa(port), "BROWSER=none")
	process.Detach(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		logFile.Close()
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		logFile.Close()
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, err
	}

	l.logger.WithFields(logrus.Fields{"project": name, "pid": cmd.Process.Pid, "port": port}).Debug("Spawned dev server")
	sink := &lineSink{w: logFile}
	sink.write("info", fmt.Sprintf("devdash: started %s (pid %d, port %d)", strings.Join(argv, " "), cmd.Process.Pid, port))

	var copyWG sync.WaitGroup
	copyWG.Add(2)
	go sink.copy(&copyWG, stdout, "info")
	go sink.copy(&copyWG, stderr, "error")

	wait := func() error {
		copyWG.Wait()
		err := cmd.Wait()
		sink.write("info", exitMessage(err))
		logFile.Close()
		return err
	}
	return &Spawned{PID: cmd.Process.Pid, Tracked: true, Wait: wait}, nil
}

func exitMessage(err error) string {
	if err == nil {
		return "devdash: process exited"
	}
	return "devdash: process exited: " + err.Error()
}

// lineSink writes "<RFC3339> <level> <text>" lines from several streams
// without interleaving partial lines.
type lineSink struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *lineSink) write(level, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "%s %s %s\n", time.Now().UTC().Format(time.RFC3339), level, text)
}

func (s *lineSink) copy(wg *sync.WaitGroup, r io.Reader, level string) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.write(level, scanner.Text())
	}
}
