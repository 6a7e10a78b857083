package serv

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Editors write schema documents with several events in quick
// succession. The reload fires once the file has been quiet this long.
const watchDebounce = 200 * time.Millisecond

// startSchemaWatcher reloads the engine whenever the schema document
// changes on disk. A rejected reload keeps the active state and is
// logged; the watcher itself never stops on a reload failure.
func startSchemaWatcher(s1 *HttpService) error {
	s := s1.Load().(*querygateService)

	path := s.conf.AbsolutePath(s.conf.SchemaFile)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "schema watcher")
	}
	defer watcher.Close() //nolint:errcheck

	// Watch the directory, not the file. Editors replace files on
	// save which would drop a watch bound to the old inode.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return errors.Wrap(err, "schema watcher")
	}

	s.log.Infof("watching schema document: %s", path)

	var debounce <-chan time.Time

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if filepath.Base(event.Name) != filepath.Base(path) {
				continue
			}
			debounce = time.After(watchDebounce)

		case <-debounce:
			debounce = nil

			res, err := s.gate.Reload(context.Background(), nil)
			if err != nil {
				s.log.Errorf("schema reload failed: %s", err)
				continue
			}
			s.log.Infof("schema reloaded: %d tables across %d databases",
				res.Tables, len(res.Databases))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warnf("schema watcher error: %s", err)
		}
	}
}
