// Package host carries action messages to the browser host and waits for the
// answer with a timeout.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

var (
	// ErrTimeout is returned when the host does not answer in time.
	ErrTimeout = errors.New("host did not respond in time")
	// ErrNoListener is returned by a Listener whose page-side helper is not
	// installed yet.
	ErrNoListener = errors.New("no listener in host page")
)

const DefaultTimeout = 15 * time.Second

// Request is an action sent to the host. It marshals flat:
// {"action": "...", ...params}.
type Request struct {
	Action string
	Params map[string]any
}

func NewRequest(action string, params map[string]any) Request {
	return Request{Action: action, Params: params}
}

func (r Request) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Params)+1)
	for k, v := range r.Params {
		m[k] = v
	}
	m["action"] = r.Action
	return json.Marshal(m)
}

// String returns a parameter as a string, or "".
func (r Request) String(key string) string {
	s, _ := r.Params[key].(string)
	return s
}

// Response is the host answer: {"success": bool, ...payload | "error"}.
type Response struct {
	Success bool
	Payload map[string]any
	Error   string
}

func (r Response) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Payload)+2)
	for k, v := range r.Payload {
		m[k] = v
	}
	m["success"] = r.Success
	if r.Error != "" {
		m["error"] = r.Error
	}
	return json.Marshal(m)
}

func (r *Response) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	r.Success, _ = m["success"].(bool)
	r.Error, _ = m["error"].(string)
	delete(m, "success")
	delete(m, "error")
	r.Payload = m
	return nil
}

// Error is a failure reported by the host itself.
type Error struct {
	Action  string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("host action %s failed: %s", e.Action, e.Message)
}

// Listener handles actions inside the host.
type Listener interface {
	Handle(ctx context.Context, req Request) (Response, error)
}

// Injector installs the page-side listener.
type Injector interface {
	Inject(ctx context.Context) error
}

// Bridge sends requests to a Listener with a timeout. When the listener is
// not present yet it injects it once and retries.
type Bridge struct {
	listener Listener
	injector Injector
	timeout  time.Duration

	mu       sync.Mutex
	injected bool
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) BridgeOption {
	return func(b *Bridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithInjector sets the injector used when the listener is missing.
func WithInjector(inj Injector) BridgeOption {
	return func(b *Bridge) {
		b.injector = inj
	}
}

func NewBridge(listener Listener, opts ...BridgeOption) *Bridge {
	b := &Bridge{listener: listener, timeout: DefaultTimeout}
	if inj, ok := listener.(Injector); ok {
		b.injector = inj
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Send delivers req and returns the host answer. A response with
// Success=false is returned as *Error.
func (b *Bridge) Send(ctx context.Context, req Request) (Response, error) {
	resp, err := b.call(ctx, req)
	if errors.Is(err, ErrNoListener) && b.claimInjection() {
		log.Printf("[host] listener missing for %s, injecting", req.Action)
		if injErr := b.inject(ctx); injErr != nil {
			return Response{}, fmt.Errorf("inject listener: %w", injErr)
		}
		resp, err = b.call(ctx, req)
	}
	if err != nil {
		return Response{}, err
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "unknown error"
		}
		return resp, &Error{Action: req.Action, Message: msg}
	}
	return resp, nil
}

func (b *Bridge) claimInjection() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.injector == nil || b.injected {
		return false
	}
	b.injected = true
	return true
}

func (b *Bridge) inject(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.injector.Inject(ctx)
}

// call races the listener against a timer and fails closed.
func (b *Bridge) call(ctx context.Context, req Request) (Response, error) {
	type answer struct {
		resp Response
		err  error
	}

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan answer, 1)
	go func() {
		resp, err := b.listener.Handle(callCtx, req)
		ch <- answer{resp, err}
	}()

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case a := <-ch:
		return a.resp, a.err
	case <-timer.C:
		return Response{}, fmt.Errorf("%s: %w", req.Action, ErrTimeout)
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Show turns on the in-page "working" indicator.
func (b *Bridge) Show(ctx context.Context) error {
	_, err := b.Send(ctx, NewRequest(ActionShowIndicator, nil))
	return err
}

// Hide removes the in-page "working" indicator.
func (b *Bridge) Hide(ctx context.Context) error {
	_, err := b.Send(ctx, NewRequest(ActionHideIndicator, nil))
	return err
}
