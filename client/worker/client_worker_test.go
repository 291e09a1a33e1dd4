package worker

import (
	"bytes"
	"errors"
	"go_msgq_copy/fileio"
	"io"
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestOutputWritesInOrder(t *testing.T) {
	c := qt.New(t)
	path := filepath.Join(t.TempDir(), "out")

	out, err := StartOutput(nil, path, false, 2)
	c.Assert(err, qt.IsNil)
	var want []byte
	buffer := make([]byte, 100)
	for i := 0; i < 50; i++ {
		// Caller reuses its buffer between writes.
		for j := range buffer {
			buffer[j] = byte(i)
		}
		n, err := out.Write(buffer)
		c.Assert(err, qt.IsNil)
		c.Assert(n, qt.Equals, len(buffer))
		want = append(want, buffer...)
	}
	c.Assert(out.Close(), qt.IsNil)

	got, err := os.ReadFile(path)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, want)
}

func TestOutputCompressed(t *testing.T) {
	c := qt.New(t)
	path := filepath.Join(t.TempDir(), "out.lz4")
	content := bytes.Repeat([]byte("lz4 framed output "), 3000)

	out, err := StartOutput(new(fileio.BufferedFactory), path, true, 4)
	c.Assert(err, qt.IsNil)
	_, err = out.Write(content)
	c.Assert(err, qt.IsNil)
	c.Assert(out.Close(), qt.IsNil)

	rc, err := fileio.OpenCompressed(path)
	c.Assert(err, qt.IsNil)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, content)
}

func TestOutputClosedTwice(t *testing.T) {
	c := qt.New(t)
	out, err := StartOutput(nil, filepath.Join(t.TempDir(), "out"), false, 1)
	c.Assert(err, qt.IsNil)

	c.Assert(out.Close(), qt.IsNil)
	c.Assert(out.Close(), qt.ErrorIs, errOutputClosed)
	_, err = out.Write([]byte("late"))
	c.Assert(err, qt.ErrorIs, errOutputClosed)
}

func TestOutputOpenFailure(t *testing.T) {
	_, err := StartOutput(nil, filepath.Join(t.TempDir(), "missing", "out"), false, 1)
	qt.Assert(t, err, qt.ErrorIs, os.ErrNotExist)
}

var errFull = errors.New("device full")

// failingWriter accepts the first write only
type failingWriter struct {
	writes int
}

func (f *failingWriter) New(string, int, bool) error { return nil }

func (f *failingWriter) Write(data []byte) (int, error) {
	f.writes++
	if f.writes > 1 {
		return 0, errFull
	}
	return len(data), nil
}

func (f *failingWriter) Close() error { return nil }

type failingFactory struct {
	fileio.BufferedFactory
	writer *failingWriter
}

func (f *failingFactory) NewWriter() fileio.FileWriter {
	return f.writer
}

func TestOutputReportsFirstWriteError(t *testing.T) {
	c := qt.New(t)
	factory := &failingFactory{writer: new(failingWriter)}
	out, err := StartOutput(factory, "ignored", false, 8)
	c.Assert(err, qt.IsNil)

	for i := 0; i < 5; i++ {
		// Writes queued before the failure surfaces are accepted.
		out.Write([]byte("x"))
	}
	c.Assert(out.Close(), qt.ErrorIs, errFull)
}
