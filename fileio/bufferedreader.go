package fileio

import (
	"bufio"
	"errors"
	"os"
)

// BufferedReader does buffered file reads
type BufferedReader struct {
	file   *os.File
	reader *bufio.Reader
}

// Open opens file for reading or returns error upon failing to do so
func (b *BufferedReader) Open(filename string, bufferSize int) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	if info.IsDir() {
		file.Close()
		return &os.PathError{Op: "open", Path: filename, Err: errors.New("is a directory")}
	}
	b.file = file
	b.reader = bufio.NewReaderSize(b.file, bufferSize)
	return nil
}

// ReadByte returns next byte of the file, io.EOF at the end
func (b *BufferedReader) ReadByte() (byte, error) {
	if b.reader == nil {
		panic("cannot read without file handle")
	}
	return b.reader.ReadByte()
}

// Close releases file handle
func (b *BufferedReader) Close() error {
	if b.file == nil {
		return nil
	}
	err := b.file.Close()
	b.file = nil
	b.reader = nil
	return err
}
