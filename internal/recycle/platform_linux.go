//go:build linux

package recycle

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// capturePlatformMetadata records ownership and, when asked, extended
// attributes of the original so a restore can put them back.
func capturePlatformMetadata(path string, info os.FileInfo, entry *Entry, cfg Config) error {
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		entry.UID = int(stat.Uid)
		entry.GID = int(stat.Gid)
	}
	if !cfg.PreserveXattrs {
		return nil
	}
	names, err := listXattrs(path)
	if err != nil {
		return err
	}
	for _, name := range names {
		if value, err := getXattr(path, name); err == nil {
			entry.Xattrs = append(entry.Xattrs, Xattr{Name: name, Value: value})
		}
	}
	return nil
}

func restorePlatformMetadata(path string, entry *Entry) error {
	if entry.UID != os.Getuid() || entry.GID != os.Getgid() {
		// Only root can give files away; anyone else keeps ownership.
		if err := os.Lchown(path, entry.UID, entry.GID); err != nil && !os.IsPermission(err) {
			return err
		}
	}
	for _, x := range entry.Xattrs {
		_ = unix.Lsetxattr(path, x.Name, x.Value, 0)
	}
	return nil
}

func listXattrs(path string) ([]string, error) {
	size, err := unix.Llistxattr(path, nil)
	if err != nil || size == 0 {
		return nil, err
	}
	buf := make([]byte, size)
	size, err = unix.Llistxattr(path, buf)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, name := range strings.Split(string(buf[:size]), "\x00") {
		if name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

func getXattr(path, name string) ([]byte, error) {
	size, err := unix.Lgetxattr(path, name, nil)
	if err != nil || size <= 0 {
		return nil, err
	}
	buf := make([]byte, size)
	n, err := unix.Lgetxattr(path, name, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// checkOwner refuses a per-user recycle directory that someone else owns,
// so one user cannot plant a directory that collects another user's files.
// Root may file into any directory.
func checkOwner(path string, info os.FileInfo) error {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}
	euid := os.Geteuid()
	if euid == 0 || int(stat.Uid) == euid {
		return nil
	}
	return fmt.Errorf("user recycle root %s is owned by uid %d, not %d", path, stat.Uid, euid)
}

// adoptUserRoot hands a freshly created per-user directory to its user when
// root created it on their behalf, as under sudo. Unknown users are left
// alone.
func adoptUserRoot(path, name string) error {
	if os.Geteuid() != 0 || name == "" {
		return nil
	}
	u, err := user.Lookup(name)
	if err != nil {
		return nil
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return nil
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return nil
	}
	return os.Lchown(path, uid, gid)
}
