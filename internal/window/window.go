// Package window records what the UI asked of its window: size, toasts and closing.
package window

import (
	"sync"
	"time"

	"github.com/gaspardpetit/figbridge/internal/logx"
)

// MaxNotifications bounds the toast history.
const MaxNotifications = 20

type Notification struct {
	Message string        `json:"message"`
	Timeout time.Duration `json:"timeout"`
	At      time.Time     `json:"at"`
}

// State is a copy of the window at one point in time.
type State struct {
	Session       string         `json:"session,omitempty"`
	Width         int            `json:"width"`
	Height        int            `json:"height"`
	Open          bool           `json:"open"`
	Notifications []Notification `json:"notifications"`
}

// Window is an open UI window. Close runs onClose once.
type Window struct {
	session string
	onClose func()
	now     func() time.Time

	mu     sync.Mutex
	width  int
	height int
	open   bool
	notes  []Notification
	once   sync.Once
}

// New opens a window of the given size. onClose may be nil.
func New(session string, width, height int, onClose func()) *Window {
	return &Window{session: session, width: width, height: height, open: true, onClose: onClose, now: time.Now}
}

func (w *Window) Notify(message string, timeout time.Duration) {
	w.mu.Lock()
	w.notes = append(w.notes, Notification{Message: message, Timeout: timeout, At: w.now()})
	if len(w.notes) > MaxNotifications {
		w.notes = w.notes[len(w.notes)-MaxNotifications:]
	}
	w.mu.Unlock()
	logx.Log.Info().Str("session", w.session).Dur("timeout", timeout).Msg(message)
}

func (w *Window) Resize(width, height int) {
	w.mu.Lock()
	w.width, w.height = width, height
	w.mu.Unlock()
	logx.Log.Debug().Str("session", w.session).Int("width", width).Int("height", height).Msg("resize")
}

func (w *Window) Close() {
	w.once.Do(func() {
		w.mu.Lock()
		w.open = false
		w.mu.Unlock()
		logx.Log.Info().Str("session", w.session).Msg("window closed")
		if w.onClose != nil {
			w.onClose()
		}
	})
}

func (w *Window) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return State{
		Session:       w.session,
		Width:         w.width,
		Height:        w.height,
		Open:          w.open,
		Notifications: append([]Notification{}, w.notes...),
	}
}

// Registry tracks the windows of live sessions.
type Registry struct {
	mu      sync.RWMutex
	windows map[string]*Window
}

func NewRegistry() *Registry { return &Registry{windows: map[string]*Window{}} }

func (r *Registry) Add(w *Window) {
	r.mu.Lock()
	r.windows[w.session] = w
	r.mu.Unlock()
}

func (r *Registry) Remove(session string) {
	r.mu.Lock()
	delete(r.windows, session)
	r.mu.Unlock()
}

// States returns every tracked window.
func (r *Registry) States() []State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]State, 0, len(r.windows))
	for _, w := range r.windows {
		out = append(out, w.State())
	}
	return out
}
