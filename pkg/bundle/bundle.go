package bundle

import (
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/housecat-inc/qtex/pkg/watch"
)

// CompileExts are the file types uploaded for compilation.
var CompileExts = []string{
	"tex", "bib", "sty", "cls", "bst",
	"pdf", "png", "jpg", "jpeg", "eps",
	"csv", "dat", "tsv", "txt",
	"tikz", "otf", "ttf",
}

var VerifyExts = []string{"tex"}

var ErrNoSource = errors.New("no LaTeX files found")

// File is one bundle entry. Name is relative to the project root and always
// uses forward slashes.
type File struct {
	Data []byte
	Name string
}

type In struct {
	Dir    string
	Exts   []string
	Ignore []string
	Skip   string
}

// Collect walks Dir and reads every file with an extension in Exts, except
// the file named Skip and directories the watcher skips too (see
// watch.SkipDir). Sources (.tex) come first, then by name. It fails
// when the bundle holds no .tex file.
func Collect(in In) ([]File, error) {
	var files []File
	err := filepath.WalkDir(in.Dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return errors.Wrapf(err, "walk %s", path)
		}
		if d.IsDir() {
			if path != in.Dir && watch.SkipDir(path, in.Ignore) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if in.Skip != "" && d.Name() == in.Skip {
			return nil
		}
		if !slices.Contains(in.Exts, watch.Ext(path)) {
			return nil
		}

		rel, err := filepath.Rel(in.Dir, path)
		if err != nil {
			return errors.Wrapf(err, "relative path of %s", path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "read %s", rel)
		}
		files = append(files, File{Data: data, Name: filepath.ToSlash(rel)})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(files, func(i, j int) bool {
		ti, tj := IsSource(files[i].Name), IsSource(files[j].Name)
		if ti != tj {
			return ti
		}
		return files[i].Name < files[j].Name
	})

	if len(files) == 0 || !IsSource(files[0].Name) {
		return nil, ErrNoSource
	}
	return files, nil
}

// IsSource reports whether name is a LaTeX source file.
func IsSource(name string) bool {
	return watch.Ext(name) == "tex"
}
