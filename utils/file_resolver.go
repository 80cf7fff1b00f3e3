package utils

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// DataPathEnv lists extra directories, colon separated, searched for
// relative data files such as fixtures and GeoJSON geometries.
const DataPathEnv = "EOSELECT_DATA_PATH"

// FileResolver finds relative data files in an ordered list of
// directories. Lookups are cached.
type FileResolver struct {
	DataDirs   []string
	fileLookup map[string]string
}

// NewFileResolver searches dirs first, then every directory of searchPath,
// then the working directory.
func NewFileResolver(searchPath string, dirs ...string) *FileResolver {
	r := &FileResolver{fileLookup: make(map[string]string)}
	for _, dir := range dirs {
		if dir = strings.TrimSpace(dir); len(dir) > 0 {
			r.DataDirs = append(r.DataDirs, dir)
		}
	}
	for _, dir := range strings.Split(searchPath, ":") {
		if dir = strings.TrimSpace(dir); len(dir) > 0 {
			r.DataDirs = append(r.DataDirs, dir)
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		r.DataDirs = append(r.DataDirs, cwd)
	}
	return r
}

// Resolve returns the first existing candidate for filePath. Absolute
// paths are only checked.
func (r *FileResolver) Resolve(filePath string) (string, error) {
	if path, found := r.fileLookup[filePath]; found {
		return path, nil
	}

	if filepath.IsAbs(filePath) {
		if err := checkFile(filePath); err != nil {
			return "", err
		}
		r.fileLookup[filePath] = filePath
		return filePath, nil
	}

	for _, dir := range r.DataDirs {
		path := filepath.Clean(filepath.Join(dir, filePath))
		if checkFile(path) == nil {
			r.fileLookup[filePath] = path
			return path, nil
		}
	}
	return "", errors.Newf("failed to resolve %s in %s", filePath, strings.Join(r.DataDirs, ":"))
}

func checkFile(filePath string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return errors.Wrapf(err, "checking %s", filePath)
	}
	if info.IsDir() {
		return errors.Newf("%s is a directory", filePath)
	}
	return nil
}
