package assuan

import (
	"os"
	"time"

	"github.com/gpgclient/gpgclient/internal/ioxfer"
)

// Spawn launches the CMS engine at path over a freshly created
// Unix-domain socketpair wired to its stdin/stdout, reads its greeting,
// and returns a ready Conn plus the child's pid. Using a socketpair
// rather than a plain pipe (as the pipe-protocol driver uses) buys
// ancillary-data descriptor passing for INPUT/OUTPUT/MESSAGE, which the
// plain-pipe pipe.Driver has no need for.
func Spawn(path string, extraArgs []string, homeDir string, timeout time.Duration) (*Conn, int, error) {
	parent, child, err := ioxfer.SocketPair()
	if err != nil {
		return nil, 0, err
	}
	if err := ioxfer.ClearCloexec(child); err != nil {
		ioxfer.Close(parent)
		ioxfer.Close(child)
		return nil, 0, err
	}

	argv := []string{path, "--server"}
	if homeDir != "" {
		argv = append(argv, "--homedir", homeDir)
	}
	argv = append(argv, extraArgs...)

	files := []uintptr{uintptr(child), uintptr(child), os.Stderr.Fd()}
	pid, err := ioxfer.Spawn(ioxfer.SpawnRequest{Path: path, Argv: argv, Files: files})
	if err != nil {
		ioxfer.Close(parent)
		ioxfer.Close(child)
		return nil, 0, err
	}
	// The child inherited its end via dup2; the parent's copy of that
	// same descriptor number must be closed or the socket will never
	// report EOF once the engine exits (same discipline as pipe.Spawn).
	ioxfer.Close(child)

	conn, err := Dial(parent, true, timeout)
	if err != nil {
		ioxfer.Close(parent)
		return nil, pid, err
	}
	return conn, pid, nil
}
