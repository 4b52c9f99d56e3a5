package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

const DefaultDebounce = time.Second * 5

// Loader fills a Catalog from a YAML file keyed by locale. Nested keys are joined with dots:
//
//	en:
//	  chat:
//	    muted: "You are muted by {0}"
type Loader struct {
	catalog  *Catalog
	fileName string
	Debounce time.Duration
}

func NewLoader(catalog *Catalog, fileName string) *Loader {
	return &Loader{
		catalog:  catalog,
		fileName: fileName,
		Debounce: DefaultDebounce,
	}
}

// Load reads the file into the catalog. A missing file leaves the catalog empty.
func (l *Loader) Load() error {
	logrus.WithField("file", l.fileName).Info("Loading message catalog")

	messages, err := l.readFile()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logrus.WithField("file", l.fileName).Info("Message catalog does not exist, skipping reading it")
			return nil
		}
		return err
	}
	return l.catalog.Replace(messages)
}

func (l *Loader) WatchForChanges(ctx context.Context) error {
	if l.fileName == "" {
		return errors.New("message catalog file needs to be specified first")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "Could not create a watcher")
	}

	err = watcher.Add(l.fileName)
	if err != nil {
		_ = watcher.Close()
		return errors.Wrap(err, "Could not watch the message catalog")
	}

	go func() {
		logrus.WithField("file", l.fileName).Info("Watching message catalog")

		debounceTimerChan := make(<-chan time.Time)
		var debounceTimer *time.Timer

		//goland:noinspection GoUnhandledErrorResult
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				logrus.
					WithField("file", event.Name).
					WithField("op", event.Op).
					Trace("fs event received")
				if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) {
					if debounceTimer == nil {
						debounceTimer = time.NewTimer(l.Debounce)
					} else {
						debounceTimer.Reset(l.Debounce)
					}
					debounceTimerChan = debounceTimer.C
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logrus.WithError(err).Warn("Message catalog watcher error")

			case <-debounceTimerChan:
				if err := l.Load(); err != nil {
					logrus.
						WithError(err).
						WithField("file", l.fileName).
						Error("Could not re-read the message catalog")
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

func (l *Loader) readFile() (map[string]map[string]string, error) {
	content, err := os.ReadFile(l.fileName)
	if err != nil {
		return nil, errors.Wrap(err, "Could not load the message catalog")
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, errors.Wrap(err, "Could not parse the yaml message catalog")
	}

	messages := make(map[string]map[string]string, len(raw))
	for locale, tree := range raw {
		paths := make(map[string]string)
		flatten("", tree, paths)
		messages[locale] = paths
	}
	return messages, nil
}

func flatten(prefix string, node interface{}, into map[string]string) {
	join := func(key interface{}) string {
		if prefix == "" {
			return fmt.Sprint(key)
		}
		return prefix + "." + fmt.Sprint(key)
	}

	switch typed := node.(type) {
	case map[interface{}]interface{}:
		for key, child := range typed {
			flatten(join(key), child, into)
		}
	case map[string]interface{}:
		for key, child := range typed {
			flatten(join(key), child, into)
		}
	case nil:
	default:
		into[prefix] = fmt.Sprint(typed)
	}
}
