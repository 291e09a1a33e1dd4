package fileio

// FileWriter persists received data. Filename "-" is standard output.
type FileWriter interface {
	New(filename string, bufferSize int, compress bool) error
	Write(data []byte) (int, error)
	Close() error
}
