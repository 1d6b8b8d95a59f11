package purchase

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/sigweihq/walletsession/pkg/types"
)

const (
	// URLPlaceholder in a browser command is replaced with the purchase URL
	URLPlaceholder = "{url}"

	// ProfilePlaceholder is replaced with a fresh directory that is removed
	// once the process exits
	ProfilePlaceholder = "{profile}"
)

// DefaultBrowserCommand opens the purchase flow in its own app window. The
// throwaway profile keeps chromium from handing the URL to a browser that is
// already running, so the process lives exactly as long as the window.
var DefaultBrowserCommand = []string{
	"chromium",
	"--user-data-dir=" + ProfilePlaceholder,
	"--no-first-run",
	"--no-default-browser-check",
	"--new-window",
	"--window-size=600,700",
	"--app=" + URLPlaceholder,
}

// Handle is a spawned purchase context
type Handle interface {
	IsClosed() bool
}

// Spawner opens a purchase URL in a separate context. A refusal must be
// reported as an error wrapping types.ErrPopupBlocked.
//
// IsClosed must only report true once the window is gone. A launcher that
// passes the URL to another process and exits does not satisfy this.
type Spawner interface {
	Spawn(ctx context.Context, url string) (Handle, error)
}

// ExecSpawner runs a browser process per purchase. The popup counts as closed
// once the process exits, so argv must keep the window in that process.
// Single-instance browsers need ProfilePlaceholder for that.
type ExecSpawner struct {
	argv   []string
	logger *slog.Logger
}

// NewExecSpawner uses DefaultBrowserCommand when argv is empty
func NewExecSpawner(argv []string, logger *slog.Logger) *ExecSpawner {
	if len(argv) == 0 {
		argv = DefaultBrowserCommand
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecSpawner{argv: argv, logger: logger}
}

func (s *ExecSpawner) Spawn(ctx context.Context, url string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrPopupBlocked, err)
	}

	argv := s.argv
	var profile string
	if usesPlaceholder(argv, ProfilePlaceholder) {
		dir, err := os.MkdirTemp("", "walletsession-purchase-")
		if err != nil {
			return nil, fmt.Errorf("%w: create browser profile: %w", types.ErrPopupBlocked, err)
		}
		profile = dir
		argv = replacePlaceholder(argv, ProfilePlaceholder, profile)
	}

	args := expandArgs(argv, url)
	// not bound to ctx: the window outlives the request that opened it
	cmd := exec.Command(args[0], args[1:]...)
	if err := cmd.Start(); err != nil {
		s.removeProfile(profile)
		return nil, fmt.Errorf("%w: %w", types.ErrPopupBlocked, err)
	}

	h := &processHandle{pid: cmd.Process.Pid, profile: profile, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		s.removeProfile(profile)
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
		close(h.done)
		s.logger.Debug("purchase window exited", "pid", h.pid, "error", err)
	}()

	return h, nil
}

func (s *ExecSpawner) removeProfile(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		s.logger.Warn("failed to remove purchase browser profile", "dir", dir, "error", err)
	}
}

func usesPlaceholder(argv []string, placeholder string) bool {
	for _, a := range argv {
		if strings.Contains(a, placeholder) {
			return true
		}
	}
	return false
}

func replacePlaceholder(argv []string, placeholder, value string) []string {
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = strings.ReplaceAll(a, placeholder, value)
	}
	return out
}

func expandArgs(argv []string, url string) []string {
	args := replacePlaceholder(argv, URLPlaceholder, url)
	if !usesPlaceholder(argv, URLPlaceholder) {
		args = append(args, url)
	}
	return args
}

type processHandle struct {
	pid     int
	profile string // removed before done is closed
	done    chan struct{}
	mu      sync.Mutex
	err     error
}

func (h *processHandle) IsClosed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Err is the process exit error, nil while it is running
func (h *processHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}
