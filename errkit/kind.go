// Package errkit implements the typed error hierarchy and the try/catch/
// finally control flow used throughout the streaming filter pipeline. It is
// the Go realization of a C longjmp-based error substrate: the non-local
// transfer is done with panic/recover, and the process-wide error slot
// becomes an explicit, passed-around Scope value (see Design Notes in
// SPEC_FULL.md) rather than implicit thread-local storage.
package errkit

import (
	"errors"
	"fmt"
	"syscall"
)

// Kind identifies a class of error in the taxonomy. Kinds form a tree rooted
// at KindRuntime; a child kind is a member of every ancestor's set.
type Kind struct {
	name   string
	fatal  bool
	parent *Kind
}

// String returns the kind's name, e.g. "FormatError".
func (k *Kind) String() string {
	if k == nil {
		return "UnknownError"
	}
	return k.name
}

// Fatal reports whether this kind is marked fatal. Fatal kinds bypass
// non-fatal catch clauses (see Catch).
func (k *Kind) Fatal() bool {
	return k != nil && k.fatal
}

// Is reports whether k is the given ancestor kind or a descendant of it.
func (k *Kind) Is(ancestor *Kind) bool {
	for cur := k; cur != nil; cur = cur.parent {
		if cur == ancestor {
			return true
		}
	}
	return false
}

func newKind(name string, parent *Kind, fatal bool) *Kind {
	return &Kind{name: name, parent: parent, fatal: fatal}
}

// Root of the kind DAG. Every kind below is a descendant of KindRuntime.
var KindRuntime = newKind("RuntimeError", nil, false)

// Taxonomy per spec.md §7. Kinds are grouped by family; every family's root
// kind is a child of KindRuntime so callers can catch broadly (e.g. any
// FileXxx error) or narrowly (e.g. only FileMissing).
var (
	KindAssert = newKind("AssertError", KindRuntime, true)
	KindFormat = newKind("FormatError", KindRuntime, false)

	kindFile        = newKind("FileError", KindRuntime, false)
	KindFileOpen    = newKind("FileOpenError", kindFile, false)
	KindFileRead    = newKind("FileReadError", kindFile, false)
	KindFileWrite   = newKind("FileWriteError", kindFile, false)
	KindFileMissing = newKind("FileMissingError", kindFile, false)
	KindFileMove    = newKind("FileMoveError", kindFile, false)
	KindFileRemove  = newKind("FileRemoveError", kindFile, false)
	KindFileSync    = newKind("FileSyncError", kindFile, false)
	KindFileClose   = newKind("FileCloseError", kindFile, false)
	KindFileInfo    = newKind("FileInfoError", kindFile, false)
	KindFileExists  = newKind("FileExistsError", kindFile, false)

	kindPath        = newKind("PathError", KindRuntime, false)
	KindPathOpen    = newKind("PathOpenError", kindPath, false)
	KindPathCreate  = newKind("PathCreateError", kindPath, false)
	KindPathMissing = newKind("PathMissingError", kindPath, false)
	KindPathRemove  = newKind("PathRemoveError", kindPath, false)
	KindPathSync    = newKind("PathSyncError", kindPath, false)
	KindPathNotEmpty = newKind("PathNotEmptyError", kindPath, false)

	KindCipher   = newKind("CipherError", KindRuntime, false)
	KindChecksum = newKind("ChecksumError", KindRuntime, false)
	KindCrypto   = newKind("CryptoError", KindRuntime, false)

	KindBackupSetInvalid = newKind("BackupSetInvalidError", KindRuntime, false)
	KindLinkMap           = newKind("LinkMapError", KindRuntime, false)
	KindTablespaceMap     = newKind("TablespaceMapError", KindRuntime, false)
	KindDbMissing         = newKind("DbMissingError", KindRuntime, false)
	KindDbInvalid         = newKind("DbInvalidError", KindRuntime, false)

	KindLock         = newKind("LockError", KindRuntime, false)
	KindOptionInvalid = newKind("OptionInvalidError", KindRuntime, false)
	KindHost          = newKind("HostError", KindRuntime, false)
	KindPgRunning     = newKind("PgRunningError", KindRuntime, false)

	// KindUnhandled is the sentinel used when an error escapes every try
	// scope. Like every kind it has its own exit code (see Code), which
	// Terminate uses for an error of this kind.
	KindUnhandled = newKind("UnhandledError", KindRuntime, true)
)

// Code returns a stable, small non-zero exit code for a kind, used when an
// uncaught error terminates the process (spec.md §6 "Exit codes"). Codes are
// assigned in declaration order of the taxonomy above; 0 is reserved for
// success and is never returned here.
func (k *Kind) Code() int {
	for i, candidate := range codeOrder {
		if candidate == k {
			return i + 1
		}
	}
	return len(codeOrder) + 1 // unknown kind maps past the end, never 0
}

var codeOrder = []*Kind{
	KindAssert, KindFormat,
	KindFileOpen, KindFileRead, KindFileWrite, KindFileMissing, KindFileMove,
	KindFileRemove, KindFileSync, KindFileClose, KindFileInfo, KindFileExists,
	KindPathOpen, KindPathCreate, KindPathMissing, KindPathRemove, KindPathSync, KindPathNotEmpty,
	KindCipher, KindChecksum, KindCrypto,
	KindBackupSetInvalid, KindLinkMap, KindTablespaceMap, KindDbMissing, KindDbInvalid,
	KindLock, KindOptionInvalid, KindHost, KindPgRunning,
	KindUnhandled,
}

// fmtErrno formats a system-call failure the way spec.md §7 requires:
// "<verb> '<path>': [<errno>] <strerror>". When err carries no
// syscall.Errno, the bracketed number is left out and err's own text
// follows the path.
func fmtErrno(verb, path string, err error) string {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return fmt.Sprintf("%s '%s': [%d] %s", verb, path, int(errno), errno.Error())
	}
	return fmt.Sprintf("%s '%s': %s", verb, path, err)
}
