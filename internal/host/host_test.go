package host

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeListener struct {
	mu        sync.Mutex
	installed bool
	injects   int
	calls     []Request
	delay     time.Duration
	respond   func(Request) Response
}

func (f *fakeListener) Handle(ctx context.Context, req Request) (Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	installed := f.installed
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Response{}, ctx.Err()
		}
	}
	if !installed {
		return Response{}, ErrNoListener
	}
	if f.respond != nil {
		return f.respond(req), nil
	}
	return Response{Success: true}, nil
}

func (f *fakeListener) Inject(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.injects++
	f.installed = true
	return nil
}

type plainListener struct{}

func (plainListener) Handle(ctx context.Context, req Request) (Response, error) {
	return Response{}, ErrNoListener
}

func TestBridge_TimesOut(t *testing.T) {
	l := &fakeListener{installed: true, delay: time.Second}
	b := NewBridge(l, WithTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := b.Send(context.Background(), NewRequest(ActionListTabs, nil))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("timeout took too long: %v", time.Since(start))
	}
}

func TestBridge_InjectsOnceAndRetries(t *testing.T) {
	l := &fakeListener{}
	b := NewBridge(l)

	if _, err := b.Send(context.Background(), NewRequest(ActionPing, nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.injects != 1 {
		t.Fatalf("expected one injection, got %d", l.injects)
	}
	if len(l.calls) != 2 {
		t.Fatalf("expected the request to be retried once, got %d calls", len(l.calls))
	}

	if _, err := b.Send(context.Background(), NewRequest(ActionPing, nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.injects != 1 {
		t.Errorf("listener injected again: %d", l.injects)
	}
}

func TestBridge_NoInjectorReturnsNoListener(t *testing.T) {
	b := NewBridge(plainListener{})
	_, err := b.Send(context.Background(), NewRequest(ActionPing, nil))
	if !errors.Is(err, ErrNoListener) {
		t.Fatalf("expected ErrNoListener, got %v", err)
	}
}

func TestBridge_HostFailureIsError(t *testing.T) {
	l := &fakeListener{installed: true, respond: func(Request) Response {
		return Response{Success: false, Error: "tab not found"}
	}}
	b := NewBridge(l)

	_, err := b.Send(context.Background(), NewRequest(ActionCloseTab, map[string]any{"tab_id": "x"}))
	var hostErr *Error
	if !errors.As(err, &hostErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if hostErr.Action != ActionCloseTab || hostErr.Message != "tab not found" {
		t.Errorf("unexpected host error: %+v", hostErr)
	}
}

func TestBridge_ShowHide(t *testing.T) {
	l := &fakeListener{installed: true}
	b := NewBridge(l)

	if err := b.Show(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := b.Hide(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(l.calls) != 2 || l.calls[0].Action != ActionShowIndicator || l.calls[1].Action != ActionHideIndicator {
		t.Errorf("unexpected calls: %+v", l.calls)
	}
}

func TestRequestResponse_FlatJSON(t *testing.T) {
	data, err := json.Marshal(NewRequest(ActionOpenTab, map[string]any{"url": "https://example.com"}))
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m["action"] != ActionOpenTab || m["url"] != "https://example.com" {
		t.Errorf("unexpected request JSON: %s", data)
	}

	var resp Response
	if err := json.Unmarshal([]byte(`{"success":true,"tab_id":"42"}`), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.Payload["tab_id"] != "42" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if _, ok := resp.Payload["success"]; ok {
		t.Error("success leaked into payload")
	}
}
