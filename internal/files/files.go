// Package files holds the uploaded input files of a job and knows how to
// put them on disk or into a download archive.
package files

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"
	"time"
	"unicode"
)

var ErrInvalidName = errors.New("invalid file name")

type File struct {
	Name    string
	Content []byte
}

// Registry gives read only access to the files of a job, keyed by role.
type Registry interface {
	Get(role string) (File, bool)
	Roles() []string
}

// Set is an in-memory Registry.
type Set struct {
	files map[string]File
}

func NewSet() *Set {
	return &Set{files: make(map[string]File)}
}

// Add registers content under role. The name is reduced by SecureFilename.
func (s *Set) Add(role, name string, content []byte) error {
	safe := SecureFilename(name)
	if safe == "" {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	s.files[role] = File{Name: safe, Content: content}
	return nil
}

func (s *Set) AddReader(role, name string, r io.Reader) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	return s.Add(role, name, content)
}

func (s *Set) Get(role string) (File, bool) {
	f, ok := s.files[role]
	return f, ok
}

func (s *Set) Roles() []string {
	roles := make([]string, 0, len(s.files))
	for r := range s.files {
		roles = append(roles, r)
	}
	slices.Sort(roles)
	return roles
}

// Names maps every role to its file name.
func Names(r Registry) map[string]string {
	ret := make(map[string]string)
	for _, role := range r.Roles() {
		if f, ok := r.Get(role); ok {
			ret[role] = f.Name
		}
	}
	return ret
}

// SecureFilename reduces name to a plain file name, which can't escape a
// directory. Path separators become underscores, everything outside
// [A-Za-z0-9._-] is dropped, leading dots are stripped. The result may be
// empty.
func SecureFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || unicode.IsSpace(r):
			return '_'
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-' || r == '_'):
			return r
		default:
			return -1
		}
	}, name)
	name = strings.Trim(name, "._")
	switch name {
	case "", ".", "..":
		return ""
	}
	return name
}

// Materialize writes every file of the registry into dir, which must exist.
// It stops at the first failure and returns the name of the file it failed
// on, files written so far are left in place.
func Materialize(dir string, r Registry) (string, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = root.Close()
	}()
	for _, role := range r.Roles() {
		f, ok := r.Get(role)
		if !ok {
			continue
		}
		if err := writeFile(root, f); err != nil {
			return f.Name, err
		}
	}
	return "", nil
}

func writeFile(root *os.Root, f File) error {
	w, err := root.Create(f.Name)
	if err != nil {
		return err
	}
	_, err = w.Write(f.Content)
	return errors.Join(err, w.Close())
}

// Package writes the download archive: the script and every input file
// under the openmm_simulation/ prefix.
func Package(w io.Writer, scriptName string, script []byte, r Registry) error {
	zw := zip.NewWriter(w)
	now := time.Now()
	add := func(name string, content []byte) error {
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     path.Join(ArchivePrefix, name),
			Method:   zip.Deflate,
			Modified: now,
		})
		if err != nil {
			return err
		}
		_, err = fw.Write(content)
		return err
	}

	if err := add(scriptName, script); err != nil {
		return fmt.Errorf("packaging %s: %w", scriptName, err)
	}
	for _, role := range r.Roles() {
		f, ok := r.Get(role)
		if !ok {
			continue
		}
		if err := add(f.Name, f.Content); err != nil {
			return fmt.Errorf("packaging %s: %w", f.Name, err)
		}
	}
	return zw.Close()
}

const ArchivePrefix = "openmm_simulation"

// ArchiveDir zips the regular files found under dir, symlinks and other
// special files are skipped.
func ArchiveDir(dir string) ([]byte, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = root.Close()
	}()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	fsys := root.FS()
	err = fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = name
		hdr.Method = zip.Deflate
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		f, err := fsys.Open(name)
		if err != nil {
			return err
		}
		defer func() {
			_ = f.Close()
		}()
		_, err = io.Copy(fw, f)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("archiving %s: %w", dir, err)
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
