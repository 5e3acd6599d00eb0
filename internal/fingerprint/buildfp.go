package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"
)

// BuildScriptInputs computes the input file set a RunCustomBuild
// unit's fingerprint covers: the explicit rerun-if-changed file set a
// prior run recorded, or the whole package directory. Once a build script
// has successfully recorded at least one rerun-if-changed entry, that
// list REPLACES the "watch the whole package directory" heuristic on
// every subsequent run — it does not merely augment it. Before any
// such record exists, the whole package directory is the input set.
func BuildScriptInputs(pkgRoot string, priorRerunIfChanged []string) ([]string, error) {
	if len(priorRerunIfChanged) > 0 {
		abs := make([]string, len(priorRerunIfChanged))
		for i, p := range priorRerunIfChanged {
			if filepath.IsAbs(p) {
				abs[i] = p
			} else {
				abs[i] = filepath.Join(pkgRoot, p)
			}
		}
		sort.Strings(abs)
		return abs, nil
	}
	return wholeDirectoryInputs(pkgRoot)
}

func wholeDirectoryInputs(root string) ([]string, error) {
	var files []string
	err := godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			files = append(files, path)
			return nil
		},
		Unsorted: true,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walking package directory %s", root)
	}
	sort.Strings(files)
	return files, nil
}

// BuildScriptPersonal hashes the path, size and modification time of
// every input path (already sorted, from BuildScriptInputs; a path
// that no longer exists is skipped) into the "personal" ingredient for
// a RunCustomBuild unit's Fingerprint, mirroring a path-source unit's
// mtime-based change detection without requiring a compiler-emitted
// dep-info file (build scripts have none of their own).
func BuildScriptPersonal(inputs []string) (string, error) {
	h := sha256.New()
	for _, p := range inputs {
		fi, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", errors.Wrapf(err, "stating build-script input %s", p)
		}
		fmt.Fprintf(h, "%s:%d:%d\n", p, fi.Size(), fi.ModTime().UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
