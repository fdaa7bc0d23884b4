package triallog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Archive copies srcPath into archiveDir/{session-id}.csv, zstd-compressed to
// {session-id}.csv.zst when compress is set. Returns the archive path.
func Archive(srcPath, archiveDir, sessionID string, compress bool) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("cannot archive %s without a session ID", srcPath)
	}

	destPath := ArchivePath(sessionID, archiveDir, compress)

	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	dest, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	defer dest.Close()

	if !compress {
		if _, err := io.Copy(dest, src); err != nil {
			return "", fmt.Errorf("copy: %w", err)
		}
		return destPath, nil
	}

	encoder, err := zstd.NewWriter(dest)
	if err != nil {
		return "", fmt.Errorf("create zstd encoder: %w", err)
	}

	if _, err := io.Copy(encoder, src); err != nil {
		encoder.Close()
		return "", fmt.Errorf("compress: %w", err)
	}

	if err := encoder.Close(); err != nil {
		return "", fmt.Errorf("finalize compression: %w", err)
	}

	return destPath, nil
}

// OpenArchive returns a reader over the decompressed log of an archive file
func OpenArchive(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if filepath.Ext(path) != ".zst" {
		return f, nil
	}

	decoder, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &archiveReader{decoder: decoder, file: f}, nil
}

type archiveReader struct {
	decoder *zstd.Decoder
	file    *os.File
}

func (r *archiveReader) Read(p []byte) (int, error) {
	return r.decoder.Read(p)
}

func (r *archiveReader) Close() error {
	r.decoder.Close()
	return r.file.Close()
}

// ArchivePath returns the deterministic archive path for a session ID
func ArchivePath(sessionID, archiveDir string, compress bool) string {
	name := sessionID + ".csv"
	if compress {
		name += ".zst"
	}
	return filepath.Join(archiveDir, name)
}
