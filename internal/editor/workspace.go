package editor

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
)

// Block is an element parsed out of a workspace document.
type Block struct {
	ID   string
	Type string
}

// Workspace is an in-memory editor surface holding block XML documents of the
// form <xml><block id=".." type="..">...</block></xml>. Safe for concurrent use;
// listeners are invoked outside the lock.
type Workspace struct {
	mu          sync.RWMutex
	document    string
	blocks      map[string]Block
	view        ViewPosition
	highlighted string
	loads       int

	listeners map[Subscription]Listener
	nextSub   Subscription
}

// NewWorkspace returns an empty workspace.
func NewWorkspace() *Workspace {
	return &Workspace{
		document:  "<xml></xml>",
		blocks:    make(map[string]Block),
		listeners: make(map[Subscription]Listener),
	}
}

// LoadSnapshot replaces all content with document. A malformed document
// leaves the current content untouched.
func (w *Workspace) LoadSnapshot(document string) error {
	blocks, err := parseDocument(document)
	if err != nil {
		return &ApplyError{EventIndex: -1, Err: err}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.document = document
	w.blocks = blocks
	w.loads++
	if _, ok := blocks[w.highlighted]; !ok {
		w.highlighted = ""
	}
	return nil
}

// Snapshot returns the current serialized document.
func (w *Workspace) Snapshot() (string, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.document, nil
}

func (w *Workspace) ViewPosition() ViewPosition {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.view
}

func (w *Workspace) SetViewPosition(pos ViewPosition) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.view = pos
}

// Highlight marks elementID. Unknown ids are ignored.
func (w *Workspace) Highlight(elementID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.blocks[elementID]; ok {
		w.highlighted = elementID
	}
}

// Highlighted returns the highlighted element id, if any.
func (w *Workspace) Highlighted() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.highlighted
}

// Blocks returns the ids of all blocks in the document, sorted.
func (w *Workspace) Blocks() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ids := make([]string, 0, len(w.blocks))
	for id := range w.blocks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Loads returns how many snapshots have been loaded successfully.
func (w *Workspace) Loads() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.loads
}

func (w *Workspace) OnChange(l Listener) Subscription {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextSub++
	w.listeners[w.nextSub] = l
	return w.nextSub
}

func (w *Workspace) OffChange(sub Subscription) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.listeners, sub)
}

// Apply performs an authoring mutation: document (when non-empty) becomes the
// new content, then subscribers are notified of ev in subscription order.
func (w *Workspace) Apply(ev ChangeEvent, document string) error {
	if document != "" {
		if err := w.LoadSnapshot(document); err != nil {
			return err
		}
	}
	w.notify(ev)
	return nil
}

func (w *Workspace) notify(ev ChangeEvent) {
	w.mu.RLock()
	subs := make([]Subscription, 0, len(w.listeners))
	for s := range w.listeners {
		subs = append(subs, s)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i] < subs[j] })
	ls := make([]Listener, len(subs))
	for i, s := range subs {
		ls[i] = w.listeners[s]
	}
	w.mu.RUnlock()

	for _, l := range ls {
		l(ev)
	}
}

// parseDocument checks that document is well-formed block XML and collects
// every block and shadow element that carries an id.
func parseDocument(document string) (map[string]Block, error) {
	dec := xml.NewDecoder(bytes.NewReader([]byte(document)))
	blocks := make(map[string]Block)
	depth := 0
	sawRoot := false

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed document: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				if sawRoot {
					return nil, errors.New("malformed document: multiple root elements")
				}
				if t.Name.Local != "xml" {
					return nil, fmt.Errorf("malformed document: root element <%s>, want <xml>", t.Name.Local)
				}
				sawRoot = true
			}
			depth++
			if t.Name.Local == "block" || t.Name.Local == "shadow" {
				var b Block
				for _, a := range t.Attr {
					switch a.Name.Local {
					case "id":
						b.ID = a.Value
					case "type":
						b.Type = a.Value
					}
				}
				if b.ID != "" {
					blocks[b.ID] = b
				}
			}
		case xml.EndElement:
			depth--
		}
	}

	if !sawRoot {
		return nil, errors.New("malformed document: no <xml> root")
	}
	return blocks, nil
}
