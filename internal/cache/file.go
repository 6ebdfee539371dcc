// Package cache implements the append-only flat-file caches shared between
// processes. Readers hold a shared flock for the length of a linear scan and
// writers an exclusive flock for the length of an append. Rows are never
// rewritten in place, so the first matching row in file order wins.
package cache

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// scan calls fn for each line of path under a shared lock until fn returns
// false. A missing file is reported as fs.ErrNotExist.
func scan(path string, fn func(line string) bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_SH); err != nil {
		return fmt.Errorf("lock %s: %w", path, err)
	}
	defer func() { _ = unix.Flock(int(f.Fd()), unix.LOCK_UN) }()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if !fn(sc.Text()) {
			return nil
		}
	}
	return sc.Err()
}

// write adds lines to path under an exclusive lock, creating it if needed.
// With truncate set the previous content is discarded first.
func write(path string, lines []string, truncate bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_APPEND
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("lock %s: %w", path, err)
	}
	defer func() { _ = unix.Flock(int(f.Fd()), unix.LOCK_UN) }()

	if truncate {
		if err := f.Truncate(0); err != nil {
			return fmt.Errorf("truncate %s: %w", path, err)
		}
	}

	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

var (
	escaper   = strings.NewReplacer("%", "%25", "|", "%7C", "\n", " ", "\r", " ")
	unescaper = strings.NewReplacer("%7C", "|", "%25", "%")
)

func joinRow(fields ...string) string {
	esc := make([]string, len(fields))
	for i, f := range fields {
		esc[i] = escaper.Replace(f)
	}
	return strings.Join(esc, "|")
}

func splitRow(line string) []string {
	fields := strings.Split(line, "|")
	for i, f := range fields {
		fields[i] = unescaper.Replace(f)
	}
	return fields
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
