// Package templates serves the outreach template library: group-keyed
// markdown files drafted outside this system. The library only loads and
// lists them; what goes into a template is someone else's problem.
package templates

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Template files are named "<group>--<name>.md"; files without the group
// separator land under the catch-all group.
const groupSeparator = "--"

type Template struct {
	Group string `json:"group"`
	Name  string `json:"name"`
	Body  string `json:"body"`
}

type Library struct {
	dir    string
	logger *zap.Logger

	mu      sync.RWMutex
	byGroup map[string][]Template

	watcher *fsnotify.Watcher
	done    chan struct{}
}

func NewLibrary(dir string, logger *zap.Logger) (*Library, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Library{
		dir:     dir,
		logger:  logger,
		byGroup: map[string][]Template{},
	}
	if err := l.reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Watch reloads the library whenever the directory changes. Call Close to
// stop watching.
func (l *Library) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(l.dir); err != nil {
		_ = watcher.Close()
		return err
	}
	l.watcher = watcher
	l.done = make(chan struct{})
	go l.loop()
	return nil
}

func (l *Library) Close() error {
	if l.watcher == nil {
		return nil
	}
	err := l.watcher.Close()
	<-l.done
	return err
}

func (l *Library) loop() {
	defer close(l.done)
	for {
		select {
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".md") {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				if err := l.reload(); err != nil {
					l.logger.Warn("template reload failed", zap.Error(err))
				}
			}
		case _, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			// Watch errors are non-fatal; the loaded set stays serving.
		}
	}
}

func (l *Library) reload() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return err
	}
	byGroup := map[string][]Template{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		body, err := os.ReadFile(filepath.Join(l.dir, entry.Name()))
		if err != nil {
			l.logger.Warn("skipping unreadable template",
				zap.String("file", entry.Name()),
				zap.Error(err))
			continue
		}
		group, name := splitTemplateName(entry.Name())
		byGroup[group] = append(byGroup[group], Template{
			Group: group,
			Name:  name,
			Body:  string(body),
		})
	}
	for _, ts := range byGroup {
		sort.Slice(ts, func(i, j int) bool { return ts[i].Name < ts[j].Name })
	}
	l.mu.Lock()
	l.byGroup = byGroup
	l.mu.Unlock()
	l.logger.Debug("template library loaded", zap.Int("groups", len(byGroup)))
	return nil
}

func splitTemplateName(filename string) (group, name string) {
	base := strings.TrimSuffix(filename, ".md")
	if idx := strings.Index(base, groupSeparator); idx > 0 {
		return base[:idx], base[idx+len(groupSeparator):]
	}
	return "other", base
}

func (l *Library) All() []Template {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Template
	groups := make([]string, 0, len(l.byGroup))
	for g := range l.byGroup {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	for _, g := range groups {
		out = append(out, l.byGroup[g]...)
	}
	return out
}

func (l *Library) ByGroup(group string) []Template {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ts := l.byGroup[group]
	out := make([]Template, len(ts))
	copy(out, ts)
	return out
}
