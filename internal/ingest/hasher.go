package ingest

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
)

const hashBufferSize = 32 * 1024

var hashBufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, hashBufferSize)
		return &buf
	},
}

// ComputeMD5 returns the lowercase hex MD5 of everything read from r.
func ComputeMD5(r io.Reader) (string, error) {
	bufPtr := hashBufferPool.Get().(*[]byte)
	defer hashBufferPool.Put(bufPtr)

	h := md5.New()
	if _, err := io.CopyBuffer(h, r, *bufPtr); err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func computeFileMD5(f File) (string, error) {
	if f.Open == nil {
		return "", fmt.Errorf("no content available for %s", f.Name)
	}
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()
	return ComputeMD5(rc)
}
