package fileio

import (
	"io"
	"os"

	"github.com/pierrec/lz4/v4"
)

// newFrameWriter returns LZ4 frame compressor writing to w
func newFrameWriter(w io.Writer) (*lz4.Writer, error) {
	zw := lz4.NewWriter(w)
	err := zw.Apply(lz4.BlockSizeOption(lz4.Block256Kb), lz4.ChecksumOption(true))
	if err != nil {
		return nil, err
	}
	return zw, nil
}

// lz4File pairs decompressor with its file so both close together
type lz4File struct {
	*lz4.Reader
	file *os.File
}

func (l *lz4File) Close() error {
	return l.file.Close()
}

// OpenCompressed opens an LZ4 framed file written with compression enabled
func OpenCompressed(filename string) (io.ReadCloser, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	return &lz4File{Reader: lz4.NewReader(file), file: file}, nil
}
