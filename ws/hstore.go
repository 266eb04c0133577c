package ws

import (
	"sort"
	"sync"
)

// memory handler store for connected sessions.
type HandlerStore struct {
	sync.RWMutex
	handlers map[string]*Handler
}

func newHandlerStore() *HandlerStore {
	return &HandlerStore{handlers: make(map[string]*Handler)}
}

func (hs *HandlerStore) get(id string) *Handler {
	hs.RLock()
	h := hs.handlers[id]
	hs.RUnlock()
	return h
}

func (hs *HandlerStore) del(id string) bool {
	hs.Lock()
	defer hs.Unlock()
	if _, ok := hs.handlers[id]; ok {
		delete(hs.handlers, id)
		return true
	}
	return false
}

func (hs *HandlerStore) add(handler *Handler) {
	hs.Lock()
	hs.handlers[handler.id] = handler
	hs.Unlock()
}

func (hs *HandlerStore) size() int {
	hs.RLock()
	defer hs.RUnlock()
	return len(hs.handlers)
}

// list returns the handlers ordered by id.
func (hs *HandlerStore) list() []*Handler {
	hs.RLock()
	out := make([]*Handler, 0, len(hs.handlers))
	for _, h := range hs.handlers {
		out = append(out, h)
	}
	hs.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (hs *HandlerStore) close() {
	// close() takes the hub lock through leave, don't hold ours.
	for _, h := range hs.list() {
		h.close(ServerStop)
	}
}
