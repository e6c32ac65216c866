// Package media keeps rendered audio in memory behind opaque object URLs of
// the form "blob:spotcraft/<uuid>", for the lifetime of a session.
//
// A URL stays resolvable until it is released. Owners release a URL when the
// clip it names is superseded and call [Registry.ReleaseAll] on shutdown.
package media

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// URLPrefix starts every URL handed out by a [Registry].
const URLPrefix = "blob:spotcraft/"

// ErrNotFound is returned for unknown or released URLs.
var ErrNotFound = errors.New("media: object not found")

// Object is a stored clip.
type Object struct {
	Data        []byte
	ContentType string
}

// Registry maps object URLs to clips. The zero value is not usable; call
// [NewRegistry].
type Registry struct {
	mu      sync.Mutex
	objects map[string]Object
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{objects: make(map[string]Object)}
}

// Create stores data and returns its URL. The registry keeps its own copy.
func (r *Registry) Create(data []byte, contentType string) string {
	url := URLPrefix + uuid.NewString()
	obj := Object{Data: append([]byte(nil), data...), ContentType: contentType}

	r.mu.Lock()
	r.objects[url] = obj
	r.mu.Unlock()
	return url
}

// Get returns the clip behind url.
func (r *Registry) Get(url string) (Object, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, ok := r.objects[url]
	if !ok {
		return Object{}, ErrNotFound
	}
	return obj, nil
}

// Release frees url. Releasing an empty, unknown or already released URL is a
// no-op, and the return value reports whether anything was freed.
func (r *Registry) Release(url string) bool {
	if !strings.HasPrefix(url, URLPrefix) {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.objects[url]; !ok {
		return false
	}
	delete(r.objects, url)
	return true
}

// ReleaseAll frees every object and returns how many were live.
func (r *Registry) ReleaseAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.objects)
	clear(r.objects)
	return n
}

// Len returns the number of live objects.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.objects)
}
