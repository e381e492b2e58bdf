// Package sessiondir manages the per-profile browser state directories and
// their zip export/import.
package sessiondir

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/commentbot/internal/apperr"
)

// junkEntries are OS artifacts ignored when deciding whether an import is nested
var junkEntries = map[string]bool{
	"__MACOSX":    true,
	".DS_Store":   true,
	"Thumbs.db":   true,
	"desktop.ini": true,
}

// ActivityChecker guards a profile's directory against live browsers. Hold
// fails while a job runs for the profile and keeps new jobs out until
// release is called.
type ActivityChecker interface {
	Hold(profile string) (release func(), ok bool)
}

// Store keeps one directory per profile under a session root
type Store struct {
	root   string
	jobs   ActivityChecker
	logger *zap.Logger
}

// NewStore creates the session root if needed
func NewStore(root string, jobs ActivityChecker, logger *zap.Logger) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session root: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{root: abs, jobs: jobs, logger: logger}, nil
}

// SetActivityChecker wires the job registry after construction
func (s *Store) SetActivityChecker(jobs ActivityChecker) {
	s.jobs = jobs
}

// Root returns the absolute session root
func (s *Store) Root() string {
	return s.root
}

// Path returns the session directory for a profile without creating it
func (s *Store) Path(profile string) (string, error) {
	if err := validateName(profile); err != nil {
		return "", err
	}
	return filepath.Join(s.root, profile), nil
}

// Ensure returns the session directory for a profile, creating it on first use
func (s *Store) Ensure(profile string) (string, error) {
	dir, err := s.Path(profile)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create session directory: %w", err)
	}
	return dir, nil
}

// Exists reports whether a session directory is present for the profile
func (s *Store) Exists(profile string) bool {
	dir, err := s.Path(profile)
	if err != nil {
		return false
	}
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// Remove deletes a profile's session directory
func (s *Store) Remove(profile string) error {
	dir, err := s.Path(profile)
	if err != nil {
		return err
	}
	release, ok := s.hold(profile)
	if !ok {
		return apperr.Conflict("cannot remove session while the bot is running for %s", profile)
	}
	defer release()

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove session directory: %w", err)
	}
	return nil
}

// Export writes the profile's session tree to w as a deflate zip with paths
// relative to the session directory. Nothing is written to w on refusal.
func (s *Store) Export(profile string, w io.Writer) error {
	dir, err := s.Path(profile)
	if err != nil {
		return err
	}
	release, ok := s.hold(profile)
	if !ok {
		return apperr.Conflict("cannot export session while the bot is running for %s", profile)
	}
	defer release()

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return apperr.NotFound("session data not found for %s", profile)
	}

	zw := zip.NewWriter(w)
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		// Lock symlinks and sockets are runtime state, not session data
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		header.Method = zip.Deflate

		dst, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()

		_, err = io.Copy(dst, src)
		return err
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("failed to export session: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to export session: %w", err)
	}
	return nil
}

// Import replaces the profile's session directory with the archive contents.
// The archive is extracted into a staging directory first, so a corrupt
// archive leaves the existing session untouched.
func (s *Store) Import(profile string, archive io.ReaderAt, size int64) error {
	dir, err := s.Path(profile)
	if err != nil {
		return err
	}
	release, ok := s.hold(profile)
	if !ok {
		return apperr.Conflict("cannot import session while the bot is running for %s", profile)
	}
	defer release()

	zr, err := zip.NewReader(archive, size)
	if err != nil {
		return apperr.Wrap(apperr.ErrArchive, err, "failed to read archive")
	}

	staging, err := os.MkdirTemp(s.root, ".import-"+profile+"-")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(staging)
		}
	}()

	if err := extract(zr, staging); err != nil {
		return err
	}

	flattened, err := Normalize(staging)
	if err != nil {
		return fmt.Errorf("failed to normalize session: %w", err)
	}
	if flattened {
		s.logger.Info("Flattened nested session folder", zap.String("profile", profile))
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove existing session: %w", err)
	}
	if err := os.Rename(staging, dir); err != nil {
		return fmt.Errorf("failed to install session: %w", err)
	}
	if err := os.Chmod(dir, 0755); err != nil {
		return fmt.Errorf("failed to install session: %w", err)
	}
	committed = true

	s.logger.Info("Session imported", zap.String("profile", profile), zap.Int("entries", len(zr.File)))
	return nil
}

// Normalize hoists the contents of a lone top-level directory into dir,
// handling archives made by zipping the profile folder itself. OS junk is
// ignored when counting top-level entries. It reports whether anything moved.
func Normalize(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}

	for _, e := range entries {
		if e.Name() == "__MACOSX" {
			if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
				return false, err
			}
		}
	}

	var kept []fs.DirEntry
	for _, e := range entries {
		if !junkEntries[e.Name()] {
			kept = append(kept, e)
		}
	}
	if len(kept) != 1 || !kept[0].IsDir() {
		return false, nil
	}

	// Move the nested folder aside first; it may contain an entry with its own name.
	nested := filepath.Join(dir, kept[0].Name())
	aside, err := os.MkdirTemp(dir, ".flatten-")
	if err != nil {
		return false, err
	}
	if err := os.Remove(aside); err != nil {
		return false, err
	}
	if err := os.Rename(nested, aside); err != nil {
		return false, err
	}

	children, err := os.ReadDir(aside)
	if err != nil {
		return false, err
	}
	for _, c := range children {
		target := filepath.Join(dir, c.Name())
		if junkEntries[c.Name()] {
			if _, err := os.Lstat(target); err == nil {
				continue
			}
		}
		if err := os.Rename(filepath.Join(aside, c.Name()), target); err != nil {
			return false, err
		}
	}

	if err := os.RemoveAll(aside); err != nil {
		return false, err
	}
	return true, nil
}

func extract(zr *zip.Reader, dest string) error {
	for _, f := range zr.File {
		name := filepath.FromSlash(strings.TrimPrefix(f.Name, "/"))
		if name == "" || name == "." {
			continue
		}
		if !filepath.IsLocal(name) {
			return apperr.New(apperr.ErrArchive, "archive entry %q escapes the session directory", f.Name)
		}
		target := filepath.Join(dest, name)

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("failed to extract session: %w", err)
			}
			continue
		}
		if !f.Mode().IsRegular() {
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("failed to extract session: %w", err)
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	src, err := f.Open()
	if err != nil {
		return apperr.Wrap(apperr.ErrArchive, err, "failed to extract %s", f.Name)
	}
	defer src.Close()

	perm := f.Mode().Perm()
	if perm == 0 {
		perm = 0644
	}
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0600)
	if err != nil {
		return fmt.Errorf("failed to extract session: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		if errors.Is(err, zip.ErrChecksum) || errors.Is(err, zip.ErrFormat) || errors.Is(err, io.ErrUnexpectedEOF) {
			return apperr.Wrap(apperr.ErrArchive, err, "failed to extract %s", f.Name)
		}
		return fmt.Errorf("failed to extract session: %w", err)
	}
	return dst.Close()
}

func (s *Store) hold(profile string) (func(), bool) {
	if s.jobs == nil {
		return func() {}, true
	}
	return s.jobs.Hold(profile)
}

func validateName(profile string) error {
	if profile == "" {
		return apperr.Validation("profile name is required")
	}
	if profile != filepath.Base(profile) || strings.ContainsAny(profile, `/\`) || !filepath.IsLocal(profile) || strings.HasPrefix(profile, ".") {
		return apperr.Validation("invalid profile name %q", profile)
	}
	return nil
}
