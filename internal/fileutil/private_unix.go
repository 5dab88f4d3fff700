//go:build !windows

// Package fileutil keeps the data directory and its databases readable only
// by the current user. The local database holds the session token and the
// server database holds password hashes.
//
// On Unix this is plain mode bits. On Windows a DACL granting access only to
// the current user is also applied; DACL failures are logged, not returned.
package fileutil

import "os"

// PrivateDir creates path and any missing parents with mode 0700.
func PrivateDir(path string) error {
	return os.MkdirAll(path, 0700)
}

// PrivateFile restricts an existing file to mode 0600.
func PrivateFile(path string) error {
	return os.Chmod(path, 0600)
}
