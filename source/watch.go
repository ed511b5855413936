package source

import (
	"log"

	"github.com/fsnotify/fsnotify"
)

// startWatch watches Root for create/remove events and logs them to the
// diagnostic stream. It never affects a command's reply; it is purely a
// verbose-mode diagnostic producer. The returned stop func closes the
// watcher.
func (w *Worker) startWatch() (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(w.Root); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) {
					log.Printf("source: %s", event)
				}
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("source: watch error: %v", werr)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
