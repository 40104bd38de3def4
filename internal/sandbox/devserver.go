package sandbox

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"apex-preview/internal/logging"
)

const (
	// maxLogBytes bounds the retained output of a dev server process.
	maxLogBytes = 256 * 1024
	stopGrace   = 5 * time.Second
)

var (
	readyURLRe = regexp.MustCompile(`https?://(?:localhost|127\.0\.0\.1|0\.0\.0\.0|\[::1?\]|[A-Za-z0-9.-]+):\d{2,5}/?`)
	ansiRe     = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

	// ErrNotReady is returned when the dev server never printed an address.
	ErrNotReady = errors.New("sandbox: dev server did not become ready")
)

// DevServerConfig holds the shell commands run in the project directory.
type DevServerConfig struct {
	InstallCmd string
	DevCmd     string
	ReadyWait  time.Duration
	Env        map[string]string
}

// DevServer starts install + dev server processes.
type DevServer struct {
	cfg DevServerConfig
	log *zap.Logger
}

// NewDevServer creates a dev server launcher. An empty InstallCmd skips the
// install step.
func NewDevServer(cfg DevServerConfig) *DevServer {
	if cfg.ReadyWait <= 0 {
		cfg.ReadyWait = 2 * time.Minute
	}
	return &DevServer{cfg: cfg, log: logging.Named("devserver")}
}

// Process is a running dev server.
type Process struct {
	URL       string
	Dir       string
	Pid       int
	StartedAt time.Time

	cmd      *exec.Cmd
	logMu    sync.Mutex
	logs     bytes.Buffer
	done     chan struct{}
	waitErr  error
	stopOnce sync.Once
}

// Start runs the install command to completion, then launches the dev
// command and waits until it prints its first http(s) address.
func (d *DevServer) Start(ctx context.Context, dir string) (*Process, error) {
	if strings.TrimSpace(d.cfg.DevCmd) == "" {
		return nil, fmt.Errorf("sandbox: no dev command configured")
	}

	if strings.TrimSpace(d.cfg.InstallCmd) != "" {
		d.log.Info("installing dependencies", zap.String("dir", dir), zap.String("cmd", d.cfg.InstallCmd))
		install := d.command(ctx, dir, d.cfg.InstallCmd)
		out, err := install.CombinedOutput()
		if err != nil {
			return nil, fmt.Errorf("install failed: %w: %s", err, lastLines(string(out), 20))
		}
	}

	// The dev server outlives the request that started it.
	cmd := d.command(context.Background(), dir, d.cfg.DevCmd)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	p := &Process{Dir: dir, cmd: cmd, done: make(chan struct{}), StartedAt: time.Now()}
	if err := cmd.Start(); err != nil {
		pw.Close()
		return nil, fmt.Errorf("start dev server: %w", err)
	}
	p.Pid = cmd.Process.Pid

	urls := make(chan string, 1)
	scanned := make(chan struct{})
	go func() {
		defer close(scanned)
		p.scan(pr, urls)
	}()
	go func() {
		p.waitErr = cmd.Wait()
		pw.Close()
		<-scanned
		close(p.done)
	}()

	timer := time.NewTimer(d.cfg.ReadyWait)
	defer timer.Stop()

	select {
	case u := <-urls:
		p.URL = u
		d.log.Info("dev server ready", zap.String("url", u), zap.Int("pid", p.Pid))
		return p, nil
	case <-p.done:
		return nil, fmt.Errorf("dev server exited before becoming ready: %v: %s", p.waitErr, lastLines(p.Logs(), 20))
	case <-timer.C:
		_ = p.Stop()
		return nil, fmt.Errorf("%w within %s", ErrNotReady, d.cfg.ReadyWait)
	case <-ctx.Done():
		_ = p.Stop()
		return nil, ctx.Err()
	}
}

func (d *DevServer) command(ctx context.Context, dir, line string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "sh", "-c", line)
	cmd.Dir = dir
	env := os.Environ()
	env = append(env, "BROWSER=none", "FORCE_COLOR=0")
	for k, v := range d.cfg.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env
	return cmd
}

// scan copies output into the log buffer and reports the first address.
func (p *Process) scan(r io.Reader, urls chan<- string) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	found := false
	for sc.Scan() {
		line := ansiRe.ReplaceAllString(sc.Text(), "")
		p.appendLog(line)
		if !found {
			if u := readyURLRe.FindString(line); u != "" {
				found = true
				urls <- u
			}
		}
	}
}

func (p *Process) appendLog(line string) {
	p.logMu.Lock()
	defer p.logMu.Unlock()
	p.logs.WriteString(line)
	p.logs.WriteByte('\n')
	if p.logs.Len() > maxLogBytes {
		data := p.logs.Bytes()
		keep := append([]byte(nil), data[len(data)-maxLogBytes/2:]...)
		p.logs.Reset()
		p.logs.Write(keep)
	}
}

// Logs returns the retained output.
func (p *Process) Logs() string {
	p.logMu.Lock()
	defer p.logMu.Unlock()
	return p.logs.String()
}

// Done is closed when the process has exited and its output is drained.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Stop terminates the process group, escalating to SIGKILL after a grace
// period. It is safe to call more than once.
func (p *Process) Stop() error {
	var err error
	p.stopOnce.Do(func() {
		if p.cmd == nil || p.cmd.Process == nil {
			return
		}
		select {
		case <-p.done:
			return
		default:
		}
		if kerr := syscall.Kill(-p.Pid, syscall.SIGTERM); kerr != nil && !errors.Is(kerr, syscall.ESRCH) {
			err = kerr
		}
		select {
		case <-p.done:
		case <-time.After(stopGrace):
			_ = syscall.Kill(-p.Pid, syscall.SIGKILL)
			<-p.done
		}
	})
	return err
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}

// LocalBooter returns a boot step for a host-local runtime: the work
// directory is created and each tool must be on PATH.
func LocalBooter(workDir string, tools ...string) BootFunc {
	return func(ctx context.Context) error {
		for _, tool := range tools {
			if _, err := exec.LookPath(tool); err != nil {
				return fmt.Errorf("%s not available: %w", tool, err)
			}
		}
		if err := os.MkdirAll(workDir, 0o755); err != nil {
			return fmt.Errorf("failed to create work directory: %w", err)
		}
		return nil
	}
}
