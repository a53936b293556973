package engine

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const (
	defaultLogLines      = 1000
	defaultFlushInterval = 100 * time.Millisecond
)

// Logger keeps the last capacity lines in memory for display and appends
// impairment events to an optional file.
//
// Only Event lines reach the file, verbatim and one per line, because an
// external plotter tails it and matches on the exact text. File writes are
// buffered and flushed on a ticker; they are never dropped.
type Logger struct {
	mu       sync.Mutex
	lines    []string
	capacity int
	head     int
	count    int

	filePath string
	file     *os.File
	buf      *bufio.Writer
	lock     *flock.Flock

	notify chan struct{}
	stop   chan struct{}
	done   chan struct{}
	closed bool
}

// NewLogger creates a Logger. An empty filePath keeps events in memory only.
// The file is locked for the lifetime of the Logger so two relays never
// interleave into one log.
func NewLogger(filePath string, capacity int) (*Logger, error) {
	if capacity <= 0 {
		capacity = defaultLogLines
	}

	l := &Logger{
		lines:    make([]string, capacity),
		capacity: capacity,
		filePath: filePath,
		notify:   make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	if err := l.openFile(); err != nil {
		return nil, err
	}

	go l.flusher()

	return l, nil
}

func (l *Logger) openFile() error {
	if l.filePath == "" {
		return nil
	}

	if dir := filepath.Dir(l.filePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	lock := flock.New(l.filePath + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock event log: %w", err)
	}
	if !ok {
		return fmt.Errorf("event log %s is in use by another relay", l.filePath)
	}

	f, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		lock.Unlock()
		return err
	}
	l.lock = lock
	l.file = f
	l.buf = bufio.NewWriter(f)
	return nil
}

// Path returns the event file path, or "" when events stay in memory.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.filePath
}

// Event records an impairment event in memory and in the event file.
func (l *Logger) Event(line string) {
	l.write(line, true)
}

// Note records a display-only line.
func (l *Logger) Note(line string) {
	l.write(line, false)
}

func (l *Logger) write(line string, persist bool) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	l.lines[l.head] = fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05.000"), line)
	l.head = (l.head + 1) % l.capacity
	if l.count < l.capacity {
		l.count++
	}

	if persist && l.buf != nil {
		l.buf.WriteString(line)
		l.buf.WriteByte('\n')
	}

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// ReadAll returns the buffered lines, oldest first.
func (l *Logger) ReadAll() string {
	if l == nil {
		return ""
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count == 0 {
		return ""
	}

	start := 0
	if l.count >= l.capacity {
		start = l.head
	}

	var result []byte
	for i := 0; i < l.count; i++ {
		idx := (start + i) % l.capacity
		if l.lines[idx] != "" {
			result = append(result, l.lines[idx]...)
			result = append(result, '\n')
		}
	}

	return string(result)
}

// Notify returns a channel that receives a token whenever a line is added.
// It is closed by Close.
func (l *Logger) Notify() <-chan struct{} {
	if l == nil {
		return nil
	}
	return l.notify
}

// Flush writes buffered event lines to the file.
func (l *Logger) Flush() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.buf == nil {
		return nil
	}
	return l.buf.Flush()
}

func (l *Logger) flusher() {
	defer close(l.done)

	ticker := time.NewTicker(defaultFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Flush()
		case <-l.stop:
			return
		}
	}
}

// Close flushes pending events, closes the file and releases its lock.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.notify)
	l.mu.Unlock()

	close(l.stop)
	<-l.done

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.buf.Flush()
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	l.lock.Unlock()
	return err
}
