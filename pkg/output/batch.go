package output

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/matzehuels/relaymap/pkg/errors"
	"github.com/matzehuels/relaymap/pkg/relay"
)

const fileMode = 0o644

// Batch stages output files in a directory and renames them into place
// together. A Batch is not safe for concurrent use.
//
// Staged files live next to their destination as hidden temporaries, so
// the final rename never crosses a filesystem boundary.
type Batch struct {
	dir    string
	staged []staged
}

type staged struct {
	tmp   string
	final string
}

// NewBatch creates a batch writing into dir, creating dir if needed.
func NewBatch(dir string) (*Batch, error) {
	if err := errors.ValidatePath(dir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeWrite, err, "create output directory %s", dir)
	}
	return &Batch{dir: dir}, nil
}

// Stage writes data to a temporary file for name. Staging the same name
// twice replaces the earlier content.
func (b *Batch) Stage(name string, data []byte) error {
	return b.StageFunc(name, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// StageFunc stages name with the content produced by write. The file is
// synced and closed before StageFunc returns; on any error the temporary is
// removed and the error carries [errors.ErrCodeWrite].
func (b *Batch) StageFunc(name string, write func(io.Writer) error) error {
	final := filepath.Join(b.dir, name)
	if filepath.Dir(final) != filepath.Clean(b.dir) || strings.HasPrefix(name, ".") {
		return errors.New(errors.ErrCodeInvalidPath, "invalid output name %q", name)
	}

	f, err := os.CreateTemp(b.dir, "."+name+".tmp-*")
	if err != nil {
		return errors.Wrap(errors.ErrCodeWrite, err, "create temporary file for %s", final)
	}
	tmp := f.Name()
	fail := func(err error) error {
		f.Close()
		os.Remove(tmp)
		return errors.Wrap(errors.ErrCodeWrite, err, "write %s", final)
	}

	if err := write(f); err != nil {
		return fail(err)
	}
	if err := f.Chmod(fileMode); err != nil {
		return fail(err)
	}
	if err := f.Sync(); err != nil {
		return fail(err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrap(errors.ErrCodeWrite, err, "write %s", final)
	}

	for i, s := range b.staged {
		if s.final == final {
			os.Remove(s.tmp)
			b.staged = append(b.staged[:i], b.staged[i+1:]...)
			break
		}
	}
	b.staged = append(b.staged, staged{tmp: tmp, final: final})
	return nil
}

// StageListing stages the CSV for l.
func (b *Batch) StageListing(l Listing, records []relay.Record) error {
	var buf bytes.Buffer
	if err := Emit(&buf, l.Select(records)); err != nil {
		return errors.Wrap(errors.ErrCodeWrite, err, "encode %s", l.File)
	}
	return b.Stage(l.File, buf.Bytes())
}

// Files returns the destination paths staged so far, in staging order.
func (b *Batch) Files() []string {
	out := make([]string, len(b.staged))
	for i, s := range b.staged {
		out[i] = s.final
	}
	return out
}

// Commit renames every staged file into place, in staging order. Each
// rename replaces its destination atomically. The previous content of every
// destination is kept as a hard link until all renames succeed; if one
// fails, the files already renamed are restored (or removed when they did not
// exist before), the remaining temporaries are removed and the error is
// returned.
func (b *Batch) Commit() error {
	var done []committed
	for i, s := range b.staged {
		c := committed{final: s.final}
		if err := os.Link(s.final, s.tmp+".prev"); err == nil {
			c.prev = s.tmp + ".prev"
		}
		if err := os.Rename(s.tmp, s.final); err != nil {
			if c.prev != "" {
				os.Remove(c.prev)
			}
			rollback(done)
			b.staged = b.staged[i:]
			b.Abort()
			return errors.Wrap(errors.ErrCodeWrite, err, "commit %s", s.final)
		}
		done = append(done, c)
	}
	for _, c := range done {
		if c.prev != "" {
			os.Remove(c.prev)
		}
	}
	b.staged = nil
	syncDir(b.dir)
	return nil
}

// committed is a destination replaced by Commit and the link to its previous
// content, if it had any.
type committed struct {
	final string
	prev  string
}

// rollback undoes renames in reverse order.
func rollback(done []committed) {
	for i := len(done) - 1; i >= 0; i-- {
		c := done[i]
		if c.prev == "" {
			os.Remove(c.final)
			continue
		}
		os.Rename(c.prev, c.final)
	}
}

// Abort removes all staged temporaries. Destination files are untouched.
// It is safe to call after Commit.
func (b *Batch) Abort() {
	for _, s := range b.staged {
		os.Remove(s.tmp)
	}
	b.staged = nil
}

// syncDir flushes the directory entry updates made by the renames.
// Not every platform supports syncing a directory; failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}
