package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
)

const (
	defaultMaxSize     = 50 << 20
	defaultMaxArchives = 50
	defaultFlushPeriod = 10 * time.Second
	wakeThreshold      = 2048
	waitInterval       = 500 * time.Millisecond
)

type RotatingOption func(*RotatingWriter)

// WithMaxSize sets the size after which the file is archived.
func WithMaxSize(n int64) RotatingOption {
	return func(w *RotatingWriter) { w.maxSize = n }
}

func WithMaxArchives(n int) RotatingOption {
	return func(w *RotatingWriter) { w.maxArchives = n }
}

func WithFlushPeriod(d time.Duration) RotatingOption {
	return func(w *RotatingWriter) { w.flushPeriod = d }
}

// RotatingWriter buffers log output in memory and writes it to a file from
// its own goroutine. Once the file grows over the max size it is compressed
// into path.1.gz and the older archives shift up by one, dropping the one
// past the max count.
type RotatingWriter struct {
	path        string
	maxSize     int64
	maxArchives int
	flushPeriod time.Duration

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool

	fileMu sync.Mutex
	file   *os.File
	size   int64

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewRotatingWriter(path string, opts ...RotatingOption) (*RotatingWriter, error) {
	w := &RotatingWriter{
		path:        path,
		maxSize:     defaultMaxSize,
		maxArchives: defaultMaxArchives,
		flushPeriod: defaultFlushPeriod,
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *RotatingWriter) Path() string {
	return w.path
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	w.file = f
	w.size = info.Size()
	return nil
}

// Write never blocks on the file. After Close the output goes to stderr.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return os.Stderr.Write(p)
	}
	w.buf.Write(p)
	n := w.buf.Len()
	w.mu.Unlock()

	if n >= wakeThreshold {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
	return len(p), nil
}

func (w *RotatingWriter) loop() {
	defer w.wg.Done()
	t := time.NewTicker(waitInterval)
	defer t.Stop()
	nextSync := time.Now().Add(w.flushPeriod)
	for {
		select {
		case <-w.done:
			w.Flush()
			return
		case <-w.wake:
		case <-t.C:
		}
		w.drain()
		if time.Now().After(nextSync) {
			w.fileMu.Lock()
			if w.file != nil {
				w.file.Sync()
			}
			w.fileMu.Unlock()
			nextSync = time.Now().Add(w.flushPeriod)
		}
	}
}

// drain moves the buffered output to the file, rotating first when the
// file is already over size.
func (w *RotatingWriter) drain() error {
	w.fileMu.Lock()
	defer w.fileMu.Unlock()

	w.mu.Lock()
	if w.buf.Len() == 0 {
		w.mu.Unlock()
		return nil
	}
	data := append([]byte(nil), w.buf.Bytes()...)
	w.buf.Reset()
	w.mu.Unlock()

	if w.file == nil {
		if err := w.open(); err != nil {
			os.Stderr.Write(data)
			return err
		}
	}
	if w.size > w.maxSize {
		if err := w.rotateLocked(); err != nil {
			fmt.Fprintf(os.Stderr, "Error rotating log file %s: %v\n", w.path, err)
		}
		if w.file == nil {
			if err := w.open(); err != nil {
				os.Stderr.Write(data)
				return err
			}
		}
	}
	n, err := w.file.Write(data)
	w.size += int64(n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error writing to log file %s: %v\n", w.path, err)
		w.file.Close()
		w.file = nil
	}
	return err
}

// Flush writes everything buffered so far.
func (w *RotatingWriter) Flush() error {
	if err := w.drain(); err != nil {
		return err
	}
	w.fileMu.Lock()
	defer w.fileMu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

func (w *RotatingWriter) archive(i int) string {
	return w.path + "." + strconv.Itoa(i) + ".gz"
}

func (w *RotatingWriter) rotateLocked() error {
	if err := w.file.Close(); err != nil {
		return err
	}
	w.file = nil

	os.Remove(w.archive(w.maxArchives))
	for i := w.maxArchives - 1; i >= 1; i-- {
		if _, err := os.Stat(w.archive(i)); err == nil {
			if err := os.Rename(w.archive(i), w.archive(i+1)); err != nil {
				return err
			}
		}
	}
	if w.maxArchives > 0 {
		if err := compressFile(w.path, w.archive(1)); err != nil {
			return err
		}
	}
	if err := os.Truncate(w.path, 0); err != nil && !os.IsNotExist(err) {
		return err
	}
	return w.open()
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(out)
	if _, err := io.Copy(zw, in); err != nil {
		zw.Close()
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Close flushes the pending output and closes the file.
func (w *RotatingWriter) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.wg.Wait()

		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		w.drain()

		w.fileMu.Lock()
		defer w.fileMu.Unlock()
		if w.file != nil {
			err = w.file.Close()
			w.file = nil
		}
	})
	return err
}
