package utils

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zstd"
)

// ZstdCompress compresses data into a single zstd frame.
func ZstdCompress(data []byte) ([]byte, error) {
	buffer := bytes.NewBuffer(make([]byte, 0, len(data)/2))
	compressed, err := zstd.NewWriter(buffer)
	if err != nil {
		return nil, err
	}

	if _, err = compressed.Write(data); err != nil {
		return nil, RunAndWrapOnError(compressed.Close, err)
	}
	if err = compressed.Close(); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// ZstdDecompress reverses ZstdCompress.
func ZstdDecompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	return io.ReadAll(decoder)
}
