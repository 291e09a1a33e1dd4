package fileio

// FileReader reads a file one byte at a time
type FileReader interface {
	Open(filename string, bufferSize int) error
	ReadByte() (byte, error)
	Close() error
}
