package logger

import (
	"fmt"
	"os"
)

// Logger is the reporting boundary: one method per event kind.
// Implementations must tolerate concurrent calls from worker goroutines.
type Logger interface {
	CreateDir(path string)
	CopyFile(src, dst string)
	Symlink(path, target string)
	Remove(path string)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(op, path string, err error)
}

// SyncLogger prints a summary, and with Verbose one line per
// operation, prefixed in dry-run mode.
type SyncLogger struct {
	IsDryRun bool
	Verbose  bool
}

func (l *SyncLogger) prefix() string {
	if l.IsDryRun {
		return "(dryrun) "
	}
	return ""
}

func (l *SyncLogger) CreateDir(path string) {
	if l.Verbose {
		fmt.Printf("%smkdir: %s\n", l.prefix(), path)
	}
}

func (l *SyncLogger) CopyFile(src, dst string) {
	if l.Verbose {
		fmt.Printf("%scopy: %s -> %s\n", l.prefix(), src, dst)
	}
}

func (l *SyncLogger) Symlink(path, target string) {
	if l.Verbose {
		fmt.Printf("%slink: %s -> %s\n", l.prefix(), path, target)
	}
}

func (l *SyncLogger) Remove(path string) {
	if l.Verbose {
		fmt.Printf("%sremove: %s\n", l.prefix(), path)
	}
}

func (l *SyncLogger) Info(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}

func (l *SyncLogger) Warn(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "WARNING: "+format+"\n", args...)
}

func (l *SyncLogger) Error(op, path string, err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %s %s: %v\n", op, path, err)
}

// QuietLogger suppresses everything except warnings and errors.
type QuietLogger struct{}

func (l *QuietLogger) CreateDir(path string) {}

func (l *QuietLogger) CopyFile(src, dst string) {}

func (l *QuietLogger) Symlink(path, target string) {}

func (l *QuietLogger) Remove(path string) {}

func (l *QuietLogger) Info(format string, args ...any) {}

func (l *QuietLogger) Warn(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "WARNING: "+format+"\n", args...)
}

func (l *QuietLogger) Error(op, path string, err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %s %s: %v\n", op, path, err)
}

// NullLogger discards everything.
type NullLogger struct{}

func (l *NullLogger) CreateDir(path string) {}

func (l *NullLogger) CopyFile(src, dst string) {}

func (l *NullLogger) Symlink(path, target string) {}

func (l *NullLogger) Remove(path string) {}

func (l *NullLogger) Info(format string, args ...any) {}

func (l *NullLogger) Warn(format string, args ...any) {}

func (l *NullLogger) Error(op, path string, err error) {}
