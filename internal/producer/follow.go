package producer

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultFollowPoll bounds the wait for a write notification. Some file
// systems deliver no events for appends from other processes.
const DefaultFollowPoll = 250 * time.Millisecond

// FollowReader reads a file that is still being written. At end of file it
// waits for the file to grow instead of returning io.EOF. It returns
// io.EOF once the file is removed or renamed, and the context error when
// ctx is done.
type FollowReader struct {
	ctx     context.Context
	f       *os.File
	watcher *fsnotify.Watcher
	poll    time.Duration

	// OnIdle, if set, is called each time the reader has caught up with the
	// writer and is about to wait. An error aborts the read.
	OnIdle func() error
}

// NewFollowReader opens path for following.
func NewFollowReader(ctx context.Context, path string) (*FollowReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		f.Close()
		return nil, err
	}
	return &FollowReader{
		ctx:     ctx,
		f:       f,
		watcher: watcher,
		poll:    DefaultFollowPoll,
	}, nil
}

// Read implements io.Reader.
func (r *FollowReader) Read(p []byte) (int, error) {
	for {
		n, err := r.f.Read(p)
		if n > 0 {
			return n, nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if r.OnIdle != nil {
			if err := r.OnIdle(); err != nil {
				return 0, err
			}
		}
		if err := r.wait(); err != nil {
			return 0, err
		}
	}
}

func (r *FollowReader) wait() error {
	timer := time.NewTimer(r.poll)
	defer timer.Stop()

	select {
	case <-r.ctx.Done():
		return r.ctx.Err()

	case event, ok := <-r.watcher.Events:
		if !ok {
			return io.EOF
		}
		if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
			return io.EOF
		}
		return nil

	case err, ok := <-r.watcher.Errors:
		if !ok {
			return io.EOF
		}
		return err

	case <-timer.C:
		return nil
	}
}

// Close stops watching and closes the file.
func (r *FollowReader) Close() error {
	werr := r.watcher.Close()
	if err := r.f.Close(); err != nil {
		return err
	}
	return werr
}
