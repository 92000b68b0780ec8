package transcript

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// pollInterval re-reads the file when no fsnotify event arrives.
const pollInterval = 500 * time.Millisecond

// Follow copies path to w and keeps copying appended lines until the
// footer has been written out or ctx is done. A trailing partial line is
// held back until its newline arrives.
func Follow(ctx context.Context, path string, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	r := bufio.NewReader(f)
	var partial strings.Builder
	footerSeen := false

	// drain copies complete lines and reports whether the footer block
	// has been fully written.
	drain := func() (bool, error) {
		for {
			chunk, err := r.ReadString('\n')
			partial.WriteString(chunk)
			if err != nil {
				if errors.Is(err, io.EOF) {
					// The footer is the last block; once it has begun and the
					// writer pauses at a line boundary the run is over.
					return footerSeen && partial.Len() == 0, nil
				}
				return false, err
			}
			line := partial.String()
			partial.Reset()
			if _, err := io.WriteString(w, line); err != nil {
				return false, err
			}
			if strings.TrimSuffix(line, "\n") == FooterMarker {
				footerSeen = true
			}
		}
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		done, err := drain()
		if err != nil || done {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				_, err := drain()
				return err
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", path, werr)
		case <-ticker.C:
		}
	}
}
