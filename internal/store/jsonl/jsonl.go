package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agentsh/saferm/pkg/types"
)

// DayLayout names one log file per day.
const DayLayout = "20060102"

// Store appends one JSON line per record to <root>/<user>/<YYYYMMDD>.
// Every record is written with a single write on an O_APPEND descriptor so
// concurrent invocations never interleave partial lines.
type Store struct {
	dir string
}

// New picks the first of roots under which a per-user directory can be
// created. Roots that fail are returned as errors alongside the store so the
// caller can report them.
func New(roots []string, user string) (*Store, []error) {
	if user == "" {
		return nil, []error{fmt.Errorf("jsonl: user is empty")}
	}
	var errs []error
	for _, root := range roots {
		if root == "" {
			continue
		}
		dir := filepath.Join(root, user)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			errs = append(errs, fmt.Errorf("mkdir log dir: %w", err))
			continue
		}
		return &Store{dir: dir}, errs
	}
	if len(errs) == 0 {
		errs = append(errs, fmt.Errorf("jsonl: no log directory configured"))
	}
	return nil, errs
}

// Dir is the per-user log directory in use.
func (s *Store) Dir() string { return s.dir }

// PathFor is the day file a record lands in.
func (s *Store) PathFor(rec types.Record) string {
	return filepath.Join(s.dir, rec.Time.Format(DayLayout))
}

func (s *Store) AppendRecord(_ context.Context, rec types.Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	f, err := os.OpenFile(s.PathFor(rec), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open jsonl: %w", err)
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("write jsonl: %w", err)
	}
	return f.Close()
}

// QueryRecords scans the day files. Malformed lines are skipped.
func (s *Store) QueryRecords(_ context.Context, q types.RecordQuery) ([]types.Record, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var days []string
	for _, f := range files {
		if f.IsDir() || len(f.Name()) != len(DayLayout) {
			continue
		}
		if q.Since != nil && f.Name() < q.Since.Format(DayLayout) {
			continue
		}
		if q.Until != nil && f.Name() > q.Until.Format(DayLayout) {
			continue
		}
		days = append(days, f.Name())
	}
	sort.Strings(days)

	var out []types.Record
	for _, day := range days {
		recs, err := readDay(filepath.Join(s.dir, day))
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			if matches(r, q) {
				out = append(out, r)
			}
		}
	}
	if !q.Asc {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func readDay(path string) ([]types.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []types.Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		var r types.Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, sc.Err()
}

func matches(r types.Record, q types.RecordQuery) bool {
	if q.User != "" && r.User != q.User && r.LoginUser != q.User {
		return false
	}
	if q.Level != "" && r.Level != q.Level {
		return false
	}
	if q.Since != nil && r.Time.Before(*q.Since) {
		return false
	}
	if q.Until != nil && r.Time.After(*q.Until) {
		return false
	}
	if q.TextLike != "" && !strings.Contains(r.Message, q.TextLike) {
		return false
	}
	return true
}

func (s *Store) Close() error { return nil }
