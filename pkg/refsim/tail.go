package refsim

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
)

const tailChunkSize = 32 * 1024

// logTail follows a growing log through its own read handle, so the writer
// keeps its offset. Bytes are read from the last offset only.
type logTail struct {
	file      *os.File
	offset    int64
	carry     []byte
	sentinels [][]byte
	keep      int
	buf       []byte
}

func newLogTail(path string, sentinels []string) (*logTail, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open commit log %s", path)
	}

	t := &logTail{file: file, buf: make([]byte, tailChunkSize)}
	for _, s := range sentinels {
		if s == "" {
			continue
		}
		t.sentinels = append(t.sentinels, []byte(s))
		if len(s)-1 > t.keep {
			t.keep = len(s) - 1
		}
	}

	return t, nil
}

// Scan reads the bytes appended since the last call and returns the first
// sentinel found. Sentinels split between two calls are found too.
func (t *logTail) Scan() (string, bool, error) {
	for {
		n, err := t.file.ReadAt(t.buf, t.offset)
		if n > 0 {
			t.offset += int64(n)

			data := append(t.carry, t.buf[:n]...)
			if sentinel, ok := t.find(data); ok {
				return sentinel, true, nil
			}

			if len(data) > t.keep {
				data = data[len(data)-t.keep:]
			}
			t.carry = append(t.carry[:0:0], data...)
		}

		if err != nil && err != io.EOF {
			return "", false, errors.Wrap(err, "error reading commit log")
		}
		if err == io.EOF || n < len(t.buf) {
			return "", false, nil
		}
	}
}

func (t *logTail) find(data []byte) (string, bool) {
	first := -1
	var found []byte
	for _, s := range t.sentinels {
		if i := bytes.Index(data, s); i >= 0 && (first < 0 || i < first) {
			first = i
			found = s
		}
	}
	return string(found), first >= 0
}

func (t *logTail) Close() error {
	return t.file.Close()
}
