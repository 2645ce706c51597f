package batch

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"
)

// Watch processes images as they appear in the directory until ctx is done.
// A file is picked up once no create or write event has touched it for the
// debounce period, so half-copied uploads are not read.
func (r *Runner) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(r.opts.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", r.opts.Dir, err)
	}
	r.log.Infof("Watching %s (debounced) ...", r.opts.Dir)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	dispatch := func(name string) {
		g.Go(func() error {
			rec, err := r.process(gctx, name)
			if err != nil {
				return err
			}
			return r.write(rec)
		})
	}

	pending := map[string]time.Time{}
	tick := r.opts.Debounce / 2
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-gctx.Done():
			err := g.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return err
		case ev, ok := <-w.Events:
			if !ok {
				return g.Wait()
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if !IsSupportedExt(name) {
				continue
			}
			pending[name] = time.Now()
		case <-ticker.C:
			now := time.Now()
			var ready []string
			for name, t := range pending {
				if now.Sub(t) > r.opts.Debounce {
					ready = append(ready, name)
					delete(pending, name)
				}
			}
			sort.Strings(ready)
			for _, name := range ready {
				dispatch(name)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return g.Wait()
			}
			r.log.Warnf("watch error: %v", err)
		}
	}
}
