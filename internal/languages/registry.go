package languages

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

var (
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	aliases  map[string]string
}

func NewRegistry() *Registry {
	r := &Registry{
		adapters: make(map[string]Adapter),
		aliases:  make(map[string]string),
	}
	r.registerDefaults()
	return r
}

// Register adds or replaces the adapter for its language id and aliases.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lang := a.Language()
	r.adapters[lang.ID] = a
	for _, alias := range lang.Aliases {
		r.aliases[alias] = lang.ID
	}
}

func (r *Registry) Get(id string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id = strings.ToLower(strings.TrimSpace(id))
	if canonical, ok := r.aliases[id]; ok {
		id = canonical
	}
	a, ok := r.adapters[id]
	if !ok {
		return nil, ErrUnsupportedLanguage
	}
	return a, nil
}

// List returns the registered languages ordered by id.
func (r *Registry) List() []Language {
	r.mu.RLock()
	defer r.mu.RUnlock()
	langs := make([]Language, 0, len(r.adapters))
	for _, a := range r.adapters {
		langs = append(langs, a.Language())
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i].ID < langs[j].ID })
	return langs
}

// Images returns the distinct runtime images of all registered languages.
func (r *Registry) Images() []string {
	seen := make(map[string]bool)
	var images []string
	for _, l := range r.List() {
		if l.Config.Image != "" && !seen[l.Config.Image] {
			seen[l.Config.Image] = true
			images = append(images, l.Config.Image)
		}
	}
	return images
}

func (r *Registry) registerDefaults() {
	r.Register(newPythonAdapter())
	r.Register(newJavaScriptAdapter())
	r.Register(newGoAdapter())
	r.Register(newJavaAdapter())
	r.Register(newCppAdapter())
}
