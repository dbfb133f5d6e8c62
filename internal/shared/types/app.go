package types

import (
	"time"

	"github.com/tembedos/runtime/internal/permissions"
)

// State represents app lifecycle states.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateError   State = "error"
)

// App represents an installed application. Records are owned by the app
// manager's registry and mutated only through its lifecycle operations.
type App struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Version     string                 `json:"version"`
	Author      string                 `json:"author"`
	EntryPoint  string                 `json:"entry_point"`
	InstallPath string                 `json:"install_path"`
	State       State                  `json:"state"`
	Permissions permissions.Permission `json:"permissions"`
	SystemApp   bool                   `json:"is_system_app"`
	InstalledAt time.Time              `json:"installed_at"`

	// Observability only; never consulted for enforcement.
	MemoryUsage uint64 `json:"memory_usage"`
	CPUTime     uint64 `json:"cpu_time"`

	// Budgets taken from the manifest at install time. Zero means the
	// sandbox default.
	MemoryLimit int64         `json:"memory_limit"`
	TimeLimit   time.Duration `json:"-"`
}

// Stats contains app manager statistics.
type Stats struct {
	Installed int     `json:"installed"`
	Running   int     `json:"running"`
	Paused    int     `json:"paused"`
	Errored   int     `json:"errored"`
	Capacity  int     `json:"capacity"`
	Current   *string `json:"current,omitempty"`
}
