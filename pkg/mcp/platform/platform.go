// Package platform defines the narrow collaborator interfaces the rest of
// the runtime depends on instead of touching the OS directly (spec.md §6
// "External interfaces"), plus the default implementations an embedding
// application gets for free.
package platform

import (
	"context"
	"os"
)

// ChildHandle is a spawned child process, returned by ProcessSpawner.Spawn.
type ChildHandle interface {
	// Wait blocks until the child exits and returns its exit error, if any.
	Wait() error
	// Kill sends a termination signal to the child.
	Kill() error
	// Pid returns the child's OS process id.
	Pid() int
}

// ProcessSpawner spawns a child process for the stdio transport. Factored out
// so a sandboxed embedding application can substitute a jailed spawner
// without pkg/mcp/transport knowing about sandboxing at all.
type ProcessSpawner interface {
	Spawn(ctx context.Context, cmd string, args, env []string, cwd string) (ChildHandle, error)
}

// UserDataPathProvider locates the directories ConfigRegistry persists
// user/project-collection configs under.
type UserDataPathProvider interface {
	// UserDataDir returns the directory for the user collection.
	UserDataDir() (string, error)
	// ProjectDir returns the directory for the project collection, if the
	// embedding application is running inside a project context.
	ProjectDir() (string, bool)
}

// TokenSource supplies a bearer token for a server requiring oauth2 auth
// (spec.md §9(b)). The embedding application wires a real implementation per
// server id; NoopTokenSource is a placeholder that always fails.
type TokenSource interface {
	Token(ctx context.Context, serverID string) (string, error)
}

// DefaultPaths is the UserDataPathProvider used when an embedding application
// doesn't supply its own: os.UserConfigDir()/deechat/mcp for the user
// collection, and no project directory.
type DefaultPaths struct {
	// AppName namespaces the config directory; defaults to "deechat" if empty.
	AppName string
}

func (p DefaultPaths) UserDataDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	name := p.AppName
	if name == "" {
		name = "deechat"
	}
	return base + string(os.PathSeparator) + name + string(os.PathSeparator) + "mcp", nil
}

func (DefaultPaths) ProjectDir() (string, bool) { return "", false }
