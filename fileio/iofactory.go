package fileio

// IOFactory hands out file access for workers (readers) and clients (writers)
type IOFactory interface {
	NewReader() FileReader
	NewWriter() FileWriter
}

// BufferedFactory is the default factory returning buffered reader/writer instances
type BufferedFactory struct{}

var _ IOFactory = (*BufferedFactory)(nil)

func (b *BufferedFactory) NewReader() FileReader {
	return new(BufferedReader)
}

func (b *BufferedFactory) NewWriter() FileWriter {
	return new(BufferedWriter)
}

// FactoryOrDefault returns f, or the buffered factory when f is nil
func FactoryOrDefault(f IOFactory) IOFactory {
	if f == nil {
		return new(BufferedFactory)
	}
	return f
}
