package recycle

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
)

// TimestampLayout is the suffix appended when a name is already taken.
const TimestampLayout = "20060102150405"

// manifestDirName holds one JSON manifest per recycled entry.
const manifestDirName = ".saferm"

// ErrDestinationExhausted is returned when no free destination name could be
// claimed.
var ErrDestinationExhausted = errors.New("no free recycle destination")

// Entry describes one recycled item.
type Entry struct {
	Name         string      `json:"name"`
	OriginalPath string      `json:"original_path"`
	RecyclePath  string      `json:"recycle_path"`
	Size         int64       `json:"size"`
	Hash         string      `json:"hash,omitempty"`
	HashAlgo     string      `json:"hash_algo,omitempty"`
	ContentType  string      `json:"content_type,omitempty"`
	Mode         os.FileMode `json:"mode"`
	UID          int         `json:"uid"`
	GID          int         `json:"gid"`
	Xattrs       []Xattr     `json:"xattrs,omitempty"`
	Mtime        time.Time   `json:"mtime"`
	User         string      `json:"user"`
	Command      string      `json:"command"`
	Created      time.Time   `json:"created"`
}

// Xattr is one extended attribute captured from the original.
type Xattr struct {
	Name  string `json:"name"`
	Value []byte `json:"value"`
}

type Config struct {
	// UserRoot is <recycle_root>/<user>.
	UserRoot       string
	User           string
	Command        string
	HashLimitBytes int64
	PreserveXattrs bool
	// Now defaults to time.Now; tests pin it to force collisions.
	Now func() time.Time
	// DryRun computes the destination without touching the filesystem.
	DryRun bool
}

// Outcome reports where a recycled copy went.
type Outcome struct {
	Entry       *Entry
	Destination string
	Virtual     bool
}

// UserRoot joins the recycle root and user name.
func UserRoot(root, user string) string {
	return filepath.Join(root, user)
}

// Recycle copies path into cfg.UserRoot. The original is left in place; the
// caller deletes it once the copy has succeeded. A destination is claimed
// atomically so concurrent invocations never overwrite each other's entries.
func Recycle(path string, cfg Config) (*Outcome, error) {
	if cfg.UserRoot == "" {
		return nil, errors.New("recycle root required")
	}
	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}
	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	base := filepath.Base(path)

	if cfg.DryRun {
		dest := filepath.Join(cfg.UserRoot, base)
		if _, err := os.Lstat(dest); err == nil {
			dest = dest + "." + now().Format(TimestampLayout)
		}
		return &Outcome{Destination: dest, Virtual: true}, nil
	}

	if err := ensureRoot(cfg.UserRoot, cfg.User); err != nil {
		return nil, err
	}
	dest, err := claim(cfg.UserRoot, base, info, now())
	if err != nil {
		return nil, err
	}
	// A tree that contains the recycle area must not be copied into itself.
	shared := filepath.Dir(filepath.Clean(cfg.UserRoot))
	skip := func(p string) bool { return p == shared || p == dest }
	if err := copyInto(path, dest, info, skip); err != nil {
		_ = os.RemoveAll(dest)
		return nil, fmt.Errorf("copy to recycle: %w", err)
	}

	entry, err := describe(path, dest, info, cfg, now())
	if err != nil {
		return nil, err
	}
	if err := writeManifest(cfg.UserRoot, entry); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	return &Outcome{Entry: entry, Destination: dest}, nil
}

// ensureRoot prepares <recycle_root>/<user>. The shared recycle root is
// created world-writable and sticky, like /tmp, so every user can add their
// own directory; an existing shared root keeps whatever mode it has. The
// per-user directory is owner-only and must belong to the caller.
func ensureRoot(userRoot, user string) error {
	shared := filepath.Dir(userRoot)
	if err := os.MkdirAll(filepath.Dir(shared), 0o755); err != nil {
		return fmt.Errorf("create recycle root: %w", err)
	}
	switch err := os.Mkdir(shared, 0o777); {
	case err == nil:
		if err := os.Chmod(shared, 0o777|os.ModeSticky); err != nil {
			return fmt.Errorf("chmod recycle root: %w", err)
		}
	case !os.IsExist(err):
		return fmt.Errorf("create recycle root: %w", err)
	}

	switch err := os.Mkdir(userRoot, 0o700); {
	case err == nil:
		if err := adoptUserRoot(userRoot, user); err != nil {
			return fmt.Errorf("chown user recycle root: %w", err)
		}
	case !os.IsExist(err):
		return fmt.Errorf("create user recycle root: %w", err)
	}
	info, err := os.Lstat(userRoot)
	if err != nil {
		return fmt.Errorf("stat user recycle root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("user recycle root %s is not a directory", userRoot)
	}
	if err := checkOwner(userRoot, info); err != nil {
		return err
	}
	if err := os.Chmod(userRoot, 0o700); err != nil {
		return fmt.Errorf("chmod user recycle root: %w", err)
	}
	return nil
}

// claim reserves a destination name. Candidates are the plain basename,
// then basename.<timestamp>, then randomized suffixes. Reservation uses
// exclusive creation so the first process to create a name owns it.
func claim(root, base string, info os.FileInfo, now time.Time) (string, error) {
	stamp := now.Format(TimestampLayout)
	candidates := []string{base, base + "." + stamp}
	for i := 0; i < 8; i++ {
		candidates = append(candidates, fmt.Sprintf("%s.%s-%s", base, stamp, uuid.NewString()[:8]))
	}
	for _, name := range candidates {
		dest := filepath.Join(root, name)
		err := reserve(dest, info)
		if err == nil {
			return dest, nil
		}
		if !os.IsExist(err) {
			return "", err
		}
	}
	return "", ErrDestinationExhausted
}

func reserve(dest string, info os.FileInfo) error {
	if info.IsDir() {
		return os.Mkdir(dest, 0o700)
	}
	// Files and links alike hold the name with an empty placeholder until
	// copyInto replaces it.
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	return f.Close()
}

func describe(path, dest string, info os.FileInfo, cfg Config, now time.Time) (*Entry, error) {
	size, err := sizeOf(dest, info)
	if err != nil {
		return nil, err
	}
	entry := &Entry{
		Name:         filepath.Base(dest),
		OriginalPath: path,
		RecyclePath:  dest,
		Size:         size,
		Mode:         info.Mode(),
		Mtime:        info.ModTime(),
		User:         cfg.User,
		Command:      cfg.Command,
		Created:      now.UTC(),
	}
	if info.Mode().IsRegular() {
		if cfg.HashLimitBytes > 0 && size <= cfg.HashLimitBytes {
			if h, err := hashFile(dest, sha256.New(), "sha256"); err == nil {
				entry.Hash, entry.HashAlgo = h.Value, h.Algo
			}
		}
		entry.ContentType = sniff(dest)
	}
	_ = capturePlatformMetadata(path, info, entry, cfg)
	return entry, nil
}

// sniff reads the magic bytes of a regular file; unknown types are left
// empty.
func sniff(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	head := make([]byte, 262)
	n, _ := f.Read(head)
	if n == 0 {
		return ""
	}
	kind, _ := filetype.Match(head[:n])
	if kind == filetype.Unknown {
		return ""
	}
	return kind.MIME.Value
}

// List returns the manifests of userRoot, oldest first.
func List(userRoot string) ([]Entry, error) {
	manDir := filepath.Join(userRoot, manifestDirName)
	files, err := os.ReadDir(manDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var entries []Entry
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(manDir, f.Name()))
		if err != nil {
			return nil, err
		}
		var e Entry
		if err := json.Unmarshal(b, &e); err != nil {
			return nil, fmt.Errorf("manifest %s: %w", f.Name(), err)
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Created.Before(entries[j].Created)
	})
	return entries, nil
}

// Restore moves a recycled entry back to its original location, or to dest
// when given. Without force an existing target is an error.
func Restore(userRoot, name, dest string, force bool) (string, error) {
	entry, manPath, err := readManifest(userRoot, name)
	if err != nil {
		return "", err
	}
	target := dest
	if target == "" {
		target = entry.OriginalPath
	}

	if _, err := os.Lstat(target); err == nil {
		if !force {
			return "", fmt.Errorf("destination exists: %s", target)
		}
		if err := os.RemoveAll(target); err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}
	if err := os.Rename(entry.RecyclePath, target); err != nil {
		info, err2 := os.Lstat(entry.RecyclePath)
		if err2 != nil {
			return "", err2
		}
		if err := copyInto(entry.RecyclePath, target, info, nil); err != nil {
			return "", err
		}
		if err := os.RemoveAll(entry.RecyclePath); err != nil {
			return "", err
		}
	}
	if entry.Mode&os.ModeSymlink == 0 {
		if err := os.Chmod(target, entry.Mode.Perm()); err != nil {
			return "", err
		}
	}
	_ = restorePlatformMetadata(target, entry)

	if entry.Hash != "" {
		if err := verifyHash(target, entry); err != nil {
			return "", err
		}
	}
	_ = os.Remove(manPath)
	return target, nil
}

func verifyHash(target string, entry *Entry) error {
	var h hash.Hash
	switch strings.ToLower(entry.HashAlgo) {
	case "", "sha256":
		h = sha256.New()
	default:
		return fmt.Errorf("unsupported hash algo %q", entry.HashAlgo)
	}
	actual, err := hashFile(target, h, entry.HashAlgo)
	if err != nil {
		return fmt.Errorf("hash target: %w", err)
	}
	if actual.Value != entry.Hash {
		return fmt.Errorf("hash mismatch on restore: expected %s got %s", entry.Hash, actual.Value)
	}
	return nil
}

type PurgeOptions struct {
	TTL        time.Duration
	QuotaBytes int64
	Now        time.Time
}

// Purge removes entries older than TTL, then the oldest entries until the
// total size fits QuotaBytes. Zero values disable either rule.
func Purge(userRoot string, opts PurgeOptions) (int, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	entries, err := List(userRoot)
	if err != nil {
		return 0, err
	}
	removed := 0
	var kept []Entry
	for _, e := range entries {
		if opts.TTL > 0 && e.Created.Add(opts.TTL).Before(now) {
			if err := removeEntry(userRoot, &e); err != nil {
				return removed, err
			}
			removed++
			continue
		}
		kept = append(kept, e)
	}

	if opts.QuotaBytes > 0 {
		var total int64
		for _, e := range kept {
			total += e.Size
		}
		for total > opts.QuotaBytes && len(kept) > 0 {
			e := kept[0]
			if err := removeEntry(userRoot, &e); err != nil {
				return removed, err
			}
			total -= e.Size
			kept = kept[1:]
			removed++
		}
	}
	return removed, nil
}

func writeManifest(userRoot string, e *Entry) error {
	manDir := filepath.Join(userRoot, manifestDirName)
	if err := os.MkdirAll(manDir, 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(manDir, e.Name+".json"), b, 0o600)
}

func readManifest(userRoot, name string) (*Entry, string, error) {
	if name == "" || strings.ContainsRune(name, os.PathSeparator) || name == "." || name == ".." {
		return nil, "", fmt.Errorf("invalid entry name %q", name)
	}
	manPath := filepath.Join(userRoot, manifestDirName, name+".json")
	b, err := os.ReadFile(manPath)
	if err != nil {
		return nil, "", err
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, "", err
	}
	return &e, manPath, nil
}

func removeEntry(userRoot string, e *Entry) error {
	_ = os.Remove(filepath.Join(userRoot, manifestDirName, e.Name+".json"))
	return os.RemoveAll(e.RecyclePath)
}

func sizeOf(path string, info os.FileInfo) (int64, error) {
	if !info.IsDir() {
		return info.Size(), nil
	}
	var total int64
	err := filepath.Walk(path, func(_ string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.Mode().IsRegular() {
			total += fi.Size()
		}
		return nil
	})
	return total, err
}

// copyInto copies src onto a destination that claim already reserved.
// Symlinks are copied as links, never followed. Children for which skip
// reports true are left out.
func copyInto(src, dest string, info os.FileInfo, skip func(string) bool) error {
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(src)
		if err != nil {
			return err
		}
		if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
			return err
		}
		return os.Symlink(target, dest)
	case info.IsDir():
		if err := os.MkdirAll(dest, 0o700); err != nil {
			return err
		}
		entries, err := os.ReadDir(src)
		if err != nil {
			return err
		}
		for _, ent := range entries {
			childSrc := filepath.Join(src, ent.Name())
			if skip != nil && skip(childSrc) {
				continue
			}
			childInfo, err := os.Lstat(childSrc)
			if err != nil {
				return err
			}
			if err := copyInto(childSrc, filepath.Join(dest, ent.Name()), childInfo, skip); err != nil {
				return err
			}
		}
		return os.Chmod(dest, info.Mode().Perm())
	case info.Mode().IsRegular():
		in, err := os.Open(src)
		if err != nil {
			return err
		}
		defer in.Close()
		out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, in); err != nil {
			_ = out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
		if err := os.Chmod(dest, info.Mode().Perm()); err != nil {
			return err
		}
		return os.Chtimes(dest, info.ModTime(), info.ModTime())
	default:
		// Devices, sockets and fifos carry no content worth keeping.
		return nil
	}
}

type fileHash struct {
	Value string
	Algo  string
}

func hashFile(path string, h hash.Hash, algo string) (*fileHash, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	if algo == "" {
		algo = "sha256"
	}
	return &fileHash{Value: fmt.Sprintf("%x", h.Sum(nil)), Algo: algo}, nil
}
