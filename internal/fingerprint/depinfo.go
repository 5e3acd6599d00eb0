package fingerprint

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// cwdPrefixMarker is the comment line this package writes (and reads
// back) at the top of every dep-info file it persists, recording the
// directory paths inside it were made relative to — dep-info files
// from the compiler record paths relative to its cwd, which is not
// necessarily the same on a later invocation, so it must be pinned
// down at write time.
const cwdPrefixMarker = "# cwd="

// WriteDepInfoHeader prepends the cwd marker to a raw dep-info file
// produced by the compiler, so ParseDepInfo can later re-resolve its
// relative paths regardless of the process's current directory at
// that point.
func WriteDepInfoHeader(path, cwd string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading dep-info %s", path)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "creating %s", tmp)
	}
	if _, err := f.WriteString(cwdPrefixMarker + cwd + "\n"); err != nil {
		f.Close()
		return err
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ParseDepInfo reads a Makefile-style dep-info file (target: dep dep
// dep\) and returns the absolute paths of every dependency it lists.
// Entries may wrap across lines with a trailing backslash continuation;
// paths are recorded relative to the compiler's cwd at generation time,
// recovered from the header WriteDepInfoHeader wrote.
func ParseDepInfo(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening dep-info %s", path)
	}
	defer f.Close()

	var cwd string
	var logical strings.Builder
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	first := true
	for sc.Scan() {
		line := sc.Text()
		if first {
			first = false
			if strings.HasPrefix(line, cwdPrefixMarker) {
				cwd = strings.TrimPrefix(line, cwdPrefixMarker)
				continue
			}
		}
		trimmed := strings.TrimRight(line, " \t")
		if strings.HasSuffix(trimmed, "\\") {
			logical.WriteString(strings.TrimSuffix(trimmed, "\\"))
			logical.WriteByte(' ')
			continue
		}
		logical.WriteString(line)
		logical.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "scanning dep-info %s", path)
	}

	var inputs []string
	for _, rawLine := range strings.Split(logical.String(), "\n") {
		rawLine = strings.TrimSpace(rawLine)
		if rawLine == "" {
			continue
		}
		parts := strings.Fields(rawLine)
		if len(parts) == 0 {
			continue
		}
		// parts[0] is "target:", the rest are dependency paths.
		for _, p := range parts[1:] {
			if p == "" {
				continue
			}
			if cwd != "" && !filepath.IsAbs(p) {
				p = filepath.Join(cwd, p)
			}
			inputs = append(inputs, p)
		}
	}
	return inputs, nil
}

// MtimeProbe returns a string identifying the freshest mtime among
// depInfoPath and every file it references — the "personal" ingredient
// for a path-source unit's Fingerprint.
func MtimeProbe(depInfoPath string) (string, error) {
	inputs, err := ParseDepInfo(depInfoPath)
	if err != nil {
		return "", err
	}

	latest, err := statModTimeNanos(depInfoPath)
	if err != nil {
		return "", err
	}
	for _, in := range inputs {
		t, err := statModTimeNanos(in)
		if err != nil {
			if os.IsNotExist(err) {
				continue // a referenced file vanishing is a dirty signal elsewhere, not a probe error
			}
			return "", err
		}
		if t > latest {
			latest = t
		}
	}
	return formatNanos(latest), nil
}

func statModTimeNanos(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return fi.ModTime().UnixNano(), nil
}

func formatNanos(n int64) string {
	return "mtime:" + strconv.FormatInt(n, 10)
}
