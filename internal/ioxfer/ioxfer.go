// Package ioxfer implements the runtime's non-blocking I/O transport:
// pipe creation, child-process spawning with explicit file-descriptor
// inheritance, a close-notify registry, readiness waiting, single-
// descriptor passing over a control socket, and child reaping.
//
// This is the one place the runtime talks to the kernel directly; it is
// built on golang.org/x/sys/unix rather than plain os/exec because the
// specification requires placing engine-chosen descriptors at engine-
// chosen fd numbers (not just the conventional stdin/stdout/stderr triple
// os/exec's ExtraFiles gives you) and requires passing a descriptor over
// a Unix-domain control socket's ancillary data — neither is reachable
// without syscall-level access. golang.org/x/sys/unix is the library the
// reference pack's go-ublk teacher-candidate reaches for to do exactly
// this kind of raw descriptor plumbing.
package ioxfer

import (
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/gpgclient/gpgclient/internal/gpgerr"
)

// Pipe creates a pipe and puts both ends into non-blocking mode. readFd
// is the end the parent reads from; writeFd is the end the parent writes
// to.
func Pipe() (readFd, writeFd int, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return -1, -1, gpgerr.Wrap(gpgerr.SourceTransport, gpgerr.KindPipeError, "pipe2", err)
	}
	return fds[0], fds[1], nil
}

// SetNonblock toggles O_NONBLOCK on fd.
func SetNonblock(fd int, nonblocking bool) error {
	if err := unix.SetNonblock(fd, nonblocking); err != nil {
		return gpgerr.Wrap(gpgerr.SourceTransport, gpgerr.KindPipeError, "set nonblock", err)
	}
	return nil
}

// ClearCloexec removes O_CLOEXEC from fd, needed for descriptors that
// must survive into the child (the ones explicitly placed in Spawn's
// Files slice are handled by the kernel regardless, but descriptors
// referenced only by number on the argv, e.g. "-&3", must also not be
// close-on-exec).
func ClearCloexec(fd int) error {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	if err != nil {
		return gpgerr.Wrap(gpgerr.SourceTransport, gpgerr.KindPipeError, "fcntl getfd", err)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, flags&^unix.FD_CLOEXEC); err != nil {
		return gpgerr.Wrap(gpgerr.SourceTransport, gpgerr.KindPipeError, "fcntl setfd", err)
	}
	return nil
}

// Read and Write wrap the raw syscalls, translating EAGAIN into a
// zero-byte, nil-error short read/write: callers driving a non-blocking
// descriptor from the reactor are expected to treat "nothing ready yet"
// as routine, not exceptional.
func Read(fd int, p []byte) (int, error) {
	n, err := unix.Read(fd, p)
	if err == unix.EAGAIN {
		return 0, nil
	}
	if err != nil {
		return n, gpgerr.Wrap(gpgerr.SourceTransport, gpgerr.KindReadError, "read", err)
	}
	return n, nil
}

func Write(fd int, p []byte) (int, error) {
	n, err := unix.Write(fd, p)
	if err == unix.EAGAIN {
		return 0, nil
	}
	if err != nil {
		return n, gpgerr.Wrap(gpgerr.SourceTransport, gpgerr.KindWriteError, "write", err)
	}
	return n, nil
}

// Close closes fd and fires any registered close-notify handler exactly
// once.
func Close(fd int) error {
	globalCloseNotify.fire(fd)
	if err := unix.Close(fd); err != nil {
		return gpgerr.Wrap(gpgerr.SourceTransport, gpgerr.KindPipeError, "close", err)
	}
	return nil
}

// --- Close-notify registry ---------------------------------------------

// CloseHandler is invoked exactly once when its registered fd is closed
// via this package's Close function.
type CloseHandler func(fd int)

type closeNotifyEntry struct {
	fd      int
	handler CloseHandler
	inUse   bool
}

// CloseNotifyTable is a fixed-size table of (fd, handler) registrations.
type CloseNotifyTable struct {
	mu      sync.Mutex
	entries []closeNotifyEntry
}

// NewCloseNotifyTable returns a table with room for capacity
// registrations.
func NewCloseNotifyTable(capacity int) *CloseNotifyTable {
	return &CloseNotifyTable{entries: make([]closeNotifyEntry, capacity)}
}

// Register installs handler for fd, returning false if the table is
// full.
func (t *CloseNotifyTable) Register(fd int, handler CloseHandler) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.entries {
		if !t.entries[i].inUse {
			t.entries[i] = closeNotifyEntry{fd: fd, handler: handler, inUse: true}
			return true
		}
	}
	return false
}

// Deregister removes fd's registration without firing its handler.
func (t *CloseNotifyTable) Deregister(fd int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.entries {
		if t.entries[i].inUse && t.entries[i].fd == fd {
			t.entries[i] = closeNotifyEntry{}
			return
		}
	}
}

func (t *CloseNotifyTable) fire(fd int) {
	t.mu.Lock()
	var h CloseHandler
	for i := range t.entries {
		if t.entries[i].inUse && t.entries[i].fd == fd {
			h = t.entries[i].handler
			t.entries[i] = closeNotifyEntry{}
			break
		}
	}
	t.mu.Unlock()
	if h != nil {
		h(fd)
	}
}

var globalCloseNotify = NewCloseNotifyTable(256)

// GlobalCloseNotify returns the table used by this package's Close
// function.
func GlobalCloseNotify() *CloseNotifyTable { return globalCloseNotify }

// --- Spawn ---------------------------------------------------------------

// SpawnRequest describes a child process to launch. Files[i] becomes fd i
// in the child (index 0/1/2 are stdin/stdout/stderr; any further indices
// are the engine's status/colon/command/data descriptors). An entry of
// ^uintptr(0) leaves that fd number unassigned (closed) in the child.
type SpawnRequest struct {
	Path  string
	Argv  []string
	Env   []string
	Files []uintptr
}

// Spawn forks and execs per req, returning the child's pid. All
// descriptors not listed in req.Files are closed in the child by virtue
// of being O_CLOEXEC (every descriptor this package creates via Pipe is
// O_CLOEXEC by default; callers must ClearCloexec on the specific fds
// destined for req.Files before calling Spawn, then re-set it in the
// parent afterward if they intend to keep using the same fd number for
// something else).
func Spawn(req SpawnRequest) (pid int, err error) {
	argv0 := req.Path
	attr := &syscall.ProcAttr{
		Env:   req.Env,
		Files: req.Files,
	}
	pid, err = syscall.ForkExec(argv0, req.Argv, attr)
	if err != nil {
		return -1, gpgerr.Wrap(gpgerr.SourceTransport, gpgerr.KindExecError, "forkexec "+req.Path, err)
	}
	return pid, nil
}

// WaitResult is the outcome of reaping a child.
type WaitResult struct {
	Status   int
	Signal   int
	Exited   bool
	Signaled bool
}

// Waitpid reaps pid. If hang is false, WNOHANG is used and a pid of 0
// with no error means the child has not yet exited.
func Waitpid(pid int, hang bool) (int, WaitResult, error) {
	var ws unix.WaitStatus
	flag := 0
	if !hang {
		flag = unix.WNOHANG
	}
	got, err := unix.Wait4(pid, &ws, flag, nil)
	if err != nil {
		return got, WaitResult{}, gpgerr.Wrap(gpgerr.SourceTransport, gpgerr.KindPipeError, "wait4", err)
	}
	res := WaitResult{}
	if ws.Exited() {
		res.Exited = true
		res.Status = ws.ExitStatus()
	}
	if ws.Signaled() {
		res.Signaled = true
		res.Signal = int(ws.Signal())
	}
	return got, res, nil
}

// --- Select --------------------------------------------------------------

// Direction is the readiness direction a descriptor is registered for.
type Direction int

const (
	DirRead Direction = iota
	DirWrite
)

// Select blocks (up to timeout, if non-nil) until at least one of the
// given descriptors is ready, returning the ready subset. An empty
// descriptor list returns immediately with no results.
func Select(read, write []int, timeout *time.Duration) (readyRead, readyWrite []int, err error) {
	if len(read) == 0 && len(write) == 0 {
		return nil, nil, nil
	}
	var rset, wset unix.FdSet
	maxFd := 0
	for _, fd := range read {
		fdSet(&rset, fd)
		if fd > maxFd {
			maxFd = fd
		}
	}
	for _, fd := range write {
		fdSet(&wset, fd)
		if fd > maxFd {
			maxFd = fd
		}
	}

	var tv *unix.Timeval
	if timeout != nil {
		t := unix.NsecToTimeval(timeout.Nanoseconds())
		tv = &t
	}

	_, err = unix.Select(maxFd+1, &rset, &wset, nil, tv)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil, nil
		}
		return nil, nil, gpgerr.Wrap(gpgerr.SourceTransport, gpgerr.KindPipeError, "select", err)
	}

	for _, fd := range read {
		if fdIsSet(&rset, fd) {
			readyRead = append(readyRead, fd)
		}
	}
	for _, fd := range write {
		if fdIsSet(&wset, fd) {
			readyWrite = append(readyWrite, fd)
		}
	}
	return readyRead, readyWrite, nil
}

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}

// --- Single-descriptor passing --------------------------------------------

// SendmsgFD sends data plus one ancillary file descriptor over sockFd,
// which must be a Unix-domain socket.
func SendmsgFD(sockFd int, data []byte, fd int) error {
	rights := unix.UnixRights(fd)
	if err := unix.Sendmsg(sockFd, data, rights, nil, 0); err != nil {
		return gpgerr.Wrap(gpgerr.SourceTransport, gpgerr.KindPipeError, "sendmsg", err)
	}
	return nil
}

// RecvmsgFD receives data plus at most one ancillary file descriptor from
// sockFd. recvFd is -1 if no descriptor was passed.
func RecvmsgFD(sockFd int, buf []byte) (n int, recvFd int, err error) {
	oob := make([]byte, unix.CmsgSpace(4))
	n, oobn, _, _, err := unix.Recvmsg(sockFd, buf, oob, 0)
	if err != nil {
		return n, -1, gpgerr.Wrap(gpgerr.SourceTransport, gpgerr.KindPipeError, "recvmsg", err)
	}
	recvFd = -1
	if oobn > 0 {
		msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
		if err == nil {
			for _, m := range msgs {
				fds, err := unix.ParseUnixRights(&m)
				if err == nil && len(fds) > 0 {
					recvFd = fds[0]
					break
				}
			}
		}
	}
	return n, recvFd, nil
}

// SocketPair creates a connected pair of Unix-domain sockets suitable for
// the Assuan control channel (supports both line traffic and ancillary
// fd passing).
func SocketPair() (a, b int, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, -1, gpgerr.Wrap(gpgerr.SourceTransport, gpgerr.KindConnectFailed, "socketpair", err)
	}
	return fds[0], fds[1], nil
}
