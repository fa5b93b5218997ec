// Package bootstrap launches the served process inside an assembled runtime
// image: it establishes the module-resolution environment, drops privileges
// to the execution identity, and starts the long-running server.
//
// Process:
//  1. Validate the image root and resolve the execution identity
//  2. Build the environment (search paths, module-resolution roots)
//  3. Spawn the server bound to all interfaces on the declared port
//  4. Watch for an immediate exit (a crash inside the launch window)
//
// The privilege drop is one-way: the credential is set at spawn time and the
// child has no path back to the elevated identity.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"stevedore/internal/identity"
	"stevedore/internal/image"
)

const (
	DefaultHost     = "0.0.0.0"
	DefaultLogLevel = "info"
)

// how long after spawn an exit is treated as a failed launch
var immediateExitWindow = 2 * time.Second

// LaunchError is the fatal runtime failure: the server could not start or
// exited immediately after starting.
type LaunchError struct {
	Command string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %v", e.Command, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Options configure a launch.
type Options struct {
	ImageDir string // runtime image directory (rootfs + metadata)
	Host     string // bind address, default 0.0.0.0
	Port     int    // override for the image's declared port
	LogLevel string // server log verbosity, default info
	LogDir   string // where to capture server output

	// DropPrivileges launches under the image's execution identity. Requires
	// the caller to be privileged. When false (unprivileged dev runs) the
	// process inherits the caller's identity.
	DropPrivileges bool
}

// Instance is a launched server process.
type Instance struct {
	ID        string
	PID       int
	Port      int
	Command   []string
	StartedAt time.Time
	LogPath   string

	process *os.Process
	waitErr chan error
}

// Wait blocks until the server process exits.
func (i *Instance) Wait() error {
	return <-i.waitErr
}

// Exited reports a process exit without blocking. When the process has
// exited, the second return carries its wait error.
func (i *Instance) Exited() (bool, error) {
	select {
	case err := <-i.waitErr:
		return true, err
	default:
		return false, nil
	}
}

// Kill terminates the server process.
func (i *Instance) Kill() error {
	return i.process.Kill()
}

// Launch starts the served process from a runtime image. The returned
// Instance is expected to run indefinitely; an exit inside the launch window
// is a LaunchError, a later exit is the orchestrator's concern.
func Launch(ctx context.Context, md *image.Metadata, opts Options) (*Instance, error) {
	logger := slog.Default()

	if opts.Host == "" {
		opts.Host = DefaultHost
	}
	if opts.Port == 0 {
		opts.Port = md.Port
	}
	if opts.LogLevel == "" {
		opts.LogLevel = DefaultLogLevel
	}

	rootfs := image.RootFS(opts.ImageDir)
	if _, err := os.Stat(rootfs); err != nil {
		return nil, &LaunchError{Command: "rootfs", Err: err}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate instance id: %w", err)
	}

	argv := Command(md, opts.Host, opts.Port, opts.LogLevel)
	if len(argv) == 0 {
		return nil, &LaunchError{Command: "", Err: fmt.Errorf("image declares no entrypoint")}
	}

	workDir := filepath.Join(rootfs, strings.TrimPrefix(md.WorkingDir, "/"))
	env := Environment(md, rootfs)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = workDir
	cmd.Env = env

	if opts.DropPrivileges {
		uid, gid, err := identity.Lookup(rootfs, md.User)
		if err != nil {
			return nil, &LaunchError{Command: argv[0], Err: err}
		}
		cmd.SysProcAttr = &syscall.SysProcAttr{
			Credential: &syscall.Credential{Uid: uint32(uid), Gid: uint32(gid)},
		}
	}

	logDir := opts.LogDir
	if logDir == "" {
		logDir = opts.ImageDir
	}
	logPath := filepath.Join(logDir, id.String()+".log")
	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, &LaunchError{Command: argv[0], Err: fmt.Errorf("create log file: %w", err)}
	}
	defer logFile.Close()

	cmd.Stdout = logFile
	cmd.Stderr = logFile

	logger.InfoContext(ctx, "launching server",
		"instance", id.String(),
		"command", strings.Join(argv, " "),
		"host", opts.Host,
		"port", opts.Port,
		"user", md.User,
		"drop_privileges", opts.DropPrivileges)

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Command: argv[0], Err: err}
	}

	instance := &Instance{
		ID:        id.String(),
		PID:       cmd.Process.Pid,
		Port:      opts.Port,
		Command:   argv,
		StartedAt: time.Now(),
		LogPath:   logPath,
		process:   cmd.Process,
		waitErr:   make(chan error, 1),
	}

	go func() {
		instance.waitErr <- cmd.Wait()
	}()

	// a server that exits this fast never started serving
	select {
	case waitErr := <-instance.waitErr:
		return nil, &LaunchError{Command: argv[0], Err: fmt.Errorf("exited immediately: %w", orExitedClean(waitErr))}
	case <-time.After(immediateExitWindow):
	}

	logger.InfoContext(ctx, "server process started",
		"instance", id.String(),
		"pid", instance.PID)

	return instance, nil
}

func orExitedClean(err error) error {
	if err == nil {
		return fmt.Errorf("exit status 0")
	}
	return err
}

// Command builds the server argv from the image entrypoint, binding it to
// the given host, port and verbosity. Images without an entrypoint get the
// stock uvicorn launch.
func Command(md *image.Metadata, host string, port int, logLevel string) []string {
	if len(md.Entrypoint) > 0 {
		argv := make([]string, len(md.Entrypoint))
		for i, arg := range md.Entrypoint {
			switch arg {
			case "{host}":
				argv[i] = host
			case "{port}":
				argv[i] = strconv.Itoa(port)
			case "{log-level}":
				argv[i] = logLevel
			default:
				argv[i] = arg
			}
		}
		return argv
	}

	return []string{
		"python3", "-m", "uvicorn", "src.main:app",
		"--host", host,
		"--port", strconv.Itoa(port),
		"--log-level", logLevel,
	}
}

// Environment builds the process environment: the image's declared env plus
// the search-path variables that let the server locate its source tree and
// installed dependencies wherever assembly placed them.
func Environment(md *image.Metadata, rootfs string) []string {
	appRoot := filepath.Join(rootfs, "app")
	vendorDir := filepath.Join(appRoot, "vendor")

	env := []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=/nonexistent",
		"PYTHONPATH=" + appRoot + ":" + vendorDir,
		"PYTHONUNBUFFERED=1",
	}
	return append(env, md.Env...)
}
