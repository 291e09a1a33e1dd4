package fileio

import (
	"bufio"
	"io"
	"os"

	"github.com/pierrec/lz4/v4"
)

// BufferedWriter does buffered writes to file, optionally LZ4 framed
type BufferedWriter struct {
	file   *os.File
	writer *bufio.Writer
	lz4    *lz4.Writer
	out    io.Writer
	stdout bool
}

// New creates new file for writing or returns error upon failing to do so
func (b *BufferedWriter) New(filename string, bufferSize int, compress bool) error {
	if filename == "-" {
		b.file = os.Stdout
		b.stdout = true
	} else {
		file, err := os.Create(filename)
		if err != nil {
			return err
		}
		b.file = file
	}

	// New buffered writer.
	b.writer = bufio.NewWriterSize(b.file, bufferSize)
	b.out = b.writer

	if compress {
		zw, err := newFrameWriter(b.writer)
		if err != nil {
			b.release()
			return err
		}
		b.lz4 = zw
		b.out = zw
	}
	return nil
}

// Write passes data through compression and buffering
func (b *BufferedWriter) Write(data []byte) (int, error) {
	if b.out == nil {
		panic("cannot write without file handle")
	}
	return b.out.Write(data)
}

// Close flushes all layers and closes the file
func (b *BufferedWriter) Close() error {
	if b.out == nil {
		return nil
	}
	var err error
	if b.lz4 != nil {
		err = b.lz4.Close()
	}
	// Write any remaining bytes.
	if ferr := b.writer.Flush(); err == nil {
		err = ferr
	}
	if cerr := b.release(); err == nil {
		err = cerr
	}
	return err
}

// release closes the file unless it is stdout
func (b *BufferedWriter) release() error {
	b.out = nil
	if b.stdout || b.file == nil {
		return nil
	}
	err := b.file.Close()
	b.file = nil
	return err
}
