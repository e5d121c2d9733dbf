package httpdl

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/tinoosan/quip/internal/data"
	"github.com/tinoosan/quip/internal/downloadcfg"
)

const nameAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const maxNameAttempts = 16

// RandomName returns n random alphanumeric characters.
func RandomName(n int) string {
	var b strings.Builder
	b.Grow(n)
	for range n {
		b.WriteByte(nameAlphabet[rand.IntN(len(nameAlphabet))])
	}
	return b.String()
}

// sanitizeName keeps only the base name so callers cannot escape the
// output directory.
func sanitizeName(name string) (string, error) {
	base := filepath.Base(filepath.Clean("/" + strings.TrimSpace(name)))
	if base == "/" || base == "." || base == ".." || base == "" {
		return "", fmt.Errorf("%w: bad file name %q", data.ErrInvalidSource, name)
	}
	return base, nil
}

// reserveName picks the output file name and creates the empty file so that
// concurrent starts never share a name.
func (e *Engine) reserveName(opts downloadcfg.StartOptions) (string, error) {
	policy := e.opts.Policy
	if opts.Policy != "" {
		policy = opts.Policy
	}

	e.nameMu.Lock()
	defer e.nameMu.Unlock()

	if opts.FileName != "" {
		name, err := sanitizeName(opts.FileName)
		if err != nil {
			return "", err
		}
		err = e.create(name, policy == downloadcfg.CollisionOverwrite)
		switch {
		case err == nil:
			return name, nil
		case !errors.Is(err, fs.ErrExist):
			return "", err
		case policy == downloadcfg.CollisionError:
			return "", fmt.Errorf("%w: %s already exists", data.ErrConflict, name)
		}
		// rename: keep the caller's extension on a generated stem.
		return e.createRandom(filepath.Ext(name))
	}
	return e.createRandom("")
}

func (e *Engine) createRandom(ext string) (string, error) {
	for range maxNameAttempts {
		name := RandomName(e.opts.NameLength) + ext
		err := e.create(name, false)
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: no free file name", data.ErrConflict)
}

func (e *Engine) create(name string, truncate bool) error {
	flags := os.O_WRONLY | os.O_CREATE
	if truncate {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(e.Path(name), flags, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}
