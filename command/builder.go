package command

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/grovetools/devdash/errors"
)

const (
	// DefaultTimeout is the default command execution timeout
	DefaultTimeout = 10 * time.Second

	// MaxTimeout is the maximum allowed timeout
	MaxTimeout = 2 * time.Minute
)

// Runner runs a short-lived command and returns its standard output.
// Probes depend on Runner rather than on os/exec so tests can observe and
// script every external command.
type Runner interface {
	Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
}

// SafeBuilder provides secure command execution with validation
type SafeBuilder struct {
	defaultTimeout time.Duration
	executor       Executor
}

// NewSafeBuilder creates a new SafeBuilder that spawns real processes
func NewSafeBuilder() *SafeBuilder {
	return NewSafeBuilderWithExecutor(OSExecutor{})
}

// NewSafeBuilderWithExecutor creates a new SafeBuilder with a custom Executor
func NewSafeBuilderWithExecutor(exec Executor) *SafeBuilder {
	return &SafeBuilder{
		defaultTimeout: DefaultTimeout,
		executor:       exec,
	}
}

// Executor returns the executor commands are created with.
func (sb *SafeBuilder) Executor() Executor {
	return sb.executor
}

// Argument types understood by Validate.
const (
	ProjectName = "projectName"
	FileName    = "fileName"
	GitRef      = "gitRef"
)

var validators = makeDefaultValidators()

// makeDefaultValidators returns the default set of validators
func makeDefaultValidators() map[string]func(string) error {
	return map[string]func(string) error{
		ProjectName: validateProjectName,
		FileName:    validateFileName,
		GitRef:      validateGitRef,
	}
}

// Validate checks a value of the given argument type before it is placed on
// a command line or matched against one.
func Validate(argType string, value string) error {
	validator, exists := validators[argType]
	if !exists {
		return fmt.Errorf("no validator for argument type: %s", argType)
	}

	return validator(value)
}

var (
	validProjectName = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)
	validGitRef      = regexp.MustCompile(`^[a-zA-Z0-9/_.-]+$`)
)

// validateProjectName ensures a project name is safe to place in a command line
func validateProjectName(name string) error {
	if name == "" {
		return fmt.Errorf("project name cannot be empty")
	}

	if !validProjectName.MatchString(name) {
		return fmt.Errorf("invalid project name: %s (must be 1-100 letters, digits, underscores or hyphens)", name)
	}

	return nil
}

// validateFileName ensures file paths are safe
func validateFileName(path string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}

	// Prevent directory traversal
	if strings.Contains(path, "..") {
		return fmt.Errorf("file path cannot contain '..'")
	}

	// Prevent command injection via shell metacharacters
	if strings.ContainsAny(path, ";|&$`\"'") {
		return fmt.Errorf("file path contains invalid characters")
	}

	return nil
}

// validateGitRef ensures git references are safe
func validateGitRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("git ref cannot be empty")
	}

	if strings.HasPrefix(ref, "-") || strings.Contains(ref, "..") {
		return fmt.Errorf("invalid git ref: %s", ref)
	}

	// Git refs: alphanumeric, slashes, hyphens, underscores, dots
	if !validGitRef.MatchString(ref) {
		return fmt.Errorf("invalid git ref: %s", ref)
	}

	return nil
}

// Command represents a safe command configuration
type Command struct {
	parent   context.Context
	name     string
	args     []string
	dir      string
	timeout  time.Duration
	executor Executor
}

// Build creates a new command with validation
func (sb *SafeBuilder) Build(ctx context.Context, name string, args ...string) (*Command, error) {
	if name == "" {
		return nil, fmt.Errorf("command name cannot be empty")
	}

	return &Command{
		parent:   ctx,
		name:     name,
		args:     args,
		timeout:  sb.defaultTimeout,
		executor: sb.executor,
	}, nil
}

// WithTimeout sets a custom timeout for the command
func (c *Command) WithTimeout(timeout time.Duration) *Command {
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}
	if timeout > 0 {
		c.timeout = timeout
	}
	return c
}

// InDir sets the working directory for the command
func (c *Command) InDir(dir string) *Command {
	c.dir = dir
	return c
}

// String returns the command line for logging
func (c *Command) String() string {
	return strings.TrimSpace(c.name + " " + strings.Join(c.args, " "))
}

// Exec creates and returns an exec.Cmd bound to ctx. The caller owns the
// context's lifetime; use Output for timeout-managed execution.
func (c *Command) Exec(ctx context.Context) *exec.Cmd {
	cmd := c.executor.CommandContext(ctx, c.name, c.args...) //nolint:gosec // SafeBuilder provides validation
	if c.dir != "" {
		cmd.Dir = c.dir
	}
	return cmd
}

// Output runs the command under its timeout and returns stdout. A timeout is
// reported as COMMAND_TIMEOUT, any other failure as COMMAND_FAILED.
func (c *Command) Output() ([]byte, error) {
	ctx, cancel := context.WithTimeout(c.parent, c.timeout)
	defer cancel()

	cmd := c.Exec(ctx)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return out, errors.Wrap(err, errors.ErrCodeCommandTimeout,
				fmt.Sprintf("command timed out after %s: %s", c.timeout, c.String()))
		}
		return out, errors.CommandFailed(c.String(), err).
			WithDetail("stderr", strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Run implements Runner using the builder's default timeout, shortened to
// the context's deadline when that comes first.
func (sb *SafeBuilder) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd, err := sb.Build(ctx, name, args...)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < cmd.timeout {
			cmd = cmd.WithTimeout(left)
		}
	}
	return cmd.InDir(dir).Output()
}

// WithDefaultTimeout returns a copy of the builder using timeout for every command.
func (sb *SafeBuilder) WithDefaultTimeout(timeout time.Duration) *SafeBuilder {
	cpy := *sb
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}
	if timeout > 0 {
		cpy.defaultTimeout = timeout
	}
	return &cpy
}
