// Package registry maintains the set of known rule documents, keyed by
// normalized path, and broadcasts change events to interested watchers
// such as the preview server.
package registry

import (
	"sync"
	"time"

	"github.com/kariedo/claude-code-security-rules/internal/types"
)

// DocumentRegistry manages all discovered rule documents.
type DocumentRegistry struct {
	documents map[string]*types.RuleDocument
	mutex     sync.RWMutex
	watchers  []chan types.DocumentEvent
}

// NewDocumentRegistry creates an empty document registry.
func NewDocumentRegistry() *DocumentRegistry {
	return &DocumentRegistry{
		documents: make(map[string]*types.RuleDocument),
		watchers:  make([]chan types.DocumentEvent, 0),
	}
}

// Register adds or updates a document, keyed by its normalized path.
// Re-registering a document whose hash is unchanged refreshes the entry
// without notifying watchers, so unchanged rescans never trigger reloads.
func (r *DocumentRegistry) Register(doc *types.RuleDocument) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	eventType := types.EventTypeAdded
	if existing, exists := r.documents[doc.NormalizedPath]; exists {
		if existing.Hash == doc.Hash {
			r.documents[doc.NormalizedPath] = doc
			return
		}
		eventType = types.EventTypeUpdated
	}

	r.documents[doc.NormalizedPath] = doc

	r.notify(types.DocumentEvent{
		Type:      eventType,
		Document:  doc,
		Timestamp: time.Now(),
	})
}

// Get retrieves a document by normalized path.
func (r *DocumentRegistry) Get(normalizedPath string) (*types.RuleDocument, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	doc, exists := r.documents[normalizedPath]
	return doc, exists
}

// GetAll returns a copy of the registered document map.
func (r *DocumentRegistry) GetAll() map[string]*types.RuleDocument {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make(map[string]*types.RuleDocument, len(r.documents))
	for path, doc := range r.documents {
		result[path] = doc
	}
	return result
}

// Remove removes a document from the registry.
func (r *DocumentRegistry) Remove(normalizedPath string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	doc, exists := r.documents[normalizedPath]
	if !exists {
		return
	}

	delete(r.documents, normalizedPath)

	r.notify(types.DocumentEvent{
		Type:      types.EventTypeRemoved,
		Document:  doc,
		Timestamp: time.Now(),
	})
}

// Watch returns a channel that receives document events.
func (r *DocumentRegistry) Watch() <-chan types.DocumentEvent {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ch := make(chan types.DocumentEvent, 100)
	r.watchers = append(r.watchers, ch)
	return ch
}

// UnWatch removes a watcher channel and closes it.
func (r *DocumentRegistry) UnWatch(ch <-chan types.DocumentEvent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i, watcher := range r.watchers {
		if watcher == ch {
			close(watcher)
			r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
			break
		}
	}
}

// Count returns the number of registered documents.
func (r *DocumentRegistry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.documents)
}

// notify sends an event to every watcher without blocking; watchers that
// have fallen behind miss the event. Callers must hold the write lock.
func (r *DocumentRegistry) notify(event types.DocumentEvent) {
	for _, watcher := range r.watchers {
		select {
		case watcher <- event:
		default:
		}
	}
}
