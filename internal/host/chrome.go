package host

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

const (
	ActionPing          = "ping"
	ActionListTabs      = "list_tabs"
	ActionOpenTab       = "open_tab"
	ActionCloseTab      = "close_tab"
	ActionActivateTab   = "activate_tab"
	ActionGroupTabs     = "group_tabs"
	ActionGetContent    = "get_content"
	ActionClick         = "click"
	ActionType          = "type"
	ActionSeekVideo     = "seek_video"
	ActionShowIndicator = "show_indicator"
	ActionHideIndicator = "hide_indicator"
)

const maxContentLength = 200000

// helperScript is the page-side listener. It owns the working indicator and
// video seeking.
const helperScript = `(() => {
  if (window.__tabpilot) { return true; }
  const id = '__tabpilot_indicator';
  window.__tabpilot = {
    show() {
      if (document.getElementById(id)) { return; }
      const el = document.createElement('div');
      el.id = id;
      el.textContent = 'TabPilot is working...';
      el.style.cssText = 'position:fixed;top:12px;right:12px;z-index:2147483647;padding:8px 14px;' +
        'border-radius:16px;background:#111;color:#0ff;font:13px sans-serif;box-shadow:0 0 12px #0ff;';
      document.documentElement.appendChild(el);
    },
    hide() {
      const el = document.getElementById(id);
      if (el) { el.remove(); }
    },
    seek(seconds) {
      const v = document.querySelector('video');
      if (!v) { return false; }
      v.currentTime = seconds;
      return true;
    },
  };
  return true;
})()`

type chromeTab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// ChromeListener executes host actions against a Chrome instance driven
// through the DevTools protocol. The browser starts on first use.
type ChromeListener struct {
	mu            sync.Mutex
	headless      bool
	actionTimeout time.Duration
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	tabs          map[target.ID]*chromeTab
	active        target.ID
	groups        map[string][]string
}

func NewChromeListener(headless bool) *ChromeListener {
	return &ChromeListener{
		headless:      headless,
		actionTimeout: 60 * time.Second,
		tabs:          make(map[target.ID]*chromeTab),
		groups:        make(map[string][]string),
	}
}

func (c *ChromeListener) initBrowser() error {
	if c.browserCtx != nil {
		select {
		case <-c.browserCtx.Done():
			c.cleanup()
		default:
			return nil
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", c.headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	c.allocCtx, c.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	c.browserCtx, c.browserCancel = chromedp.NewContext(c.allocCtx)

	if err := chromedp.Run(c.browserCtx); err != nil {
		c.cleanup()
		return err
	}

	id := chromedp.FromContext(c.browserCtx).Target.TargetID
	c.tabs[id] = &chromeTab{ctx: c.browserCtx}
	c.active = id
	return nil
}

func (c *ChromeListener) cleanup() {
	for id, t := range c.tabs {
		if t.cancel != nil {
			t.cancel()
		}
		delete(c.tabs, id)
	}
	if c.browserCancel != nil {
		c.browserCancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}
	c.browserCtx = nil
	c.allocCtx = nil
	c.active = ""
}

// Close shuts the browser down.
func (c *ChromeListener) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanup()
	return nil
}

// tab returns the context of a tab, attaching to tabs the user opened.
func (c *ChromeListener) tab(id target.ID) context.Context {
	if t, ok := c.tabs[id]; ok {
		return t.ctx
	}
	ctx, cancel := chromedp.NewContext(c.browserCtx, chromedp.WithTargetID(id))
	c.tabs[id] = &chromeTab{ctx: ctx, cancel: cancel}
	return ctx
}

func (c *ChromeListener) activeTab() context.Context {
	if c.active == "" {
		for id := range c.tabs {
			c.active = id
			break
		}
	}
	return c.tab(c.active)
}

// Inject installs the page-side helper in the active tab.
func (c *ChromeListener) Inject(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.initBrowser(); err != nil {
		return fmt.Errorf("failed to initialize browser: %w", err)
	}
	actionCtx, cancel := context.WithTimeout(c.activeTab(), c.actionTimeout)
	defer cancel()
	var ok bool
	return chromedp.Run(actionCtx, chromedp.Evaluate(helperScript, &ok))
}

func (c *ChromeListener) Handle(ctx context.Context, req Request) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.initBrowser(); err != nil {
		return Response{}, fmt.Errorf("failed to initialize browser: %w", err)
	}

	switch req.Action {
	case ActionListTabs:
		return c.listTabs()
	case ActionOpenTab:
		return c.openTab(req.String("url"))
	case ActionCloseTab:
		return c.closeTab(target.ID(req.String("tab_id")))
	case ActionActivateTab:
		return c.activateTab(target.ID(req.String("tab_id")))
	case ActionGroupTabs:
		return c.groupTabs(req.String("name"), stringList(req.Params["tab_ids"]))
	}

	actionCtx, cancel := context.WithTimeout(c.activeTab(), c.actionTimeout)
	defer cancel()

	switch req.Action {
	case ActionPing:
		return c.helperCall(actionCtx, "true")
	case ActionGetContent:
		return c.content(actionCtx)
	case ActionClick:
		sel := req.String("selector")
		if sel == "" {
			return failure("selector is required"), nil
		}
		if err := chromedp.Run(actionCtx, chromedp.Click(sel, chromedp.ByQuery)); err != nil {
			return failure(err.Error()), nil
		}
		return success(map[string]any{"selector": sel}), nil
	case ActionType:
		sel, text := req.String("selector"), req.String("text")
		if sel == "" || text == "" {
			return failure("selector and text are required"), nil
		}
		if err := chromedp.Run(actionCtx, chromedp.SendKeys(sel, text, chromedp.ByQuery)); err != nil {
			return failure(err.Error()), nil
		}
		return success(map[string]any{"selector": sel}), nil
	case ActionSeekVideo:
		seconds, ok := number(req.Params["seconds"])
		if !ok || seconds < 0 {
			return failure("seconds must be a non-negative number"), nil
		}
		return c.helperCall(actionCtx, "window.__tabpilot.seek("+strconv.FormatFloat(seconds, 'f', -1, 64)+")")
	case ActionShowIndicator:
		return c.helperCall(actionCtx, "(window.__tabpilot.show(), true)")
	case ActionHideIndicator:
		return c.helperCall(actionCtx, "(window.__tabpilot.hide(), true)")
	default:
		return failure("unknown action " + req.Action), nil
	}
}

// helperCall evaluates expr only when the helper is installed, reporting
// ErrNoListener otherwise.
func (c *ChromeListener) helperCall(ctx context.Context, expr string) (Response, error) {
	var present bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(`typeof window.__tabpilot === 'object'`, &present)); err != nil {
		return Response{}, err
	}
	if !present {
		return Response{}, ErrNoListener
	}
	var ok bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(expr, &ok)); err != nil {
		return failure(err.Error()), nil
	}
	if !ok {
		return failure("the page has no matching element"), nil
	}
	return success(nil), nil
}

func (c *ChromeListener) listTabs() (Response, error) {
	infos, err := chromedp.Targets(c.browserCtx)
	if err != nil {
		return Response{}, err
	}
	tabs := make([]any, 0, len(infos))
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		tabs = append(tabs, map[string]any{
			"id":     string(info.TargetID),
			"title":  info.Title,
			"url":    info.URL,
			"active": info.TargetID == c.active,
		})
	}
	return success(map[string]any{"tabs": tabs}), nil
}

func (c *ChromeListener) openTab(url string) (Response, error) {
	if url == "" {
		return failure("url is required"), nil
	}
	ctx, cancel := chromedp.NewContext(c.browserCtx)
	navCtx, navCancel := context.WithTimeout(ctx, c.actionTimeout)
	defer navCancel()
	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		cancel()
		return failure(err.Error()), nil
	}
	id := chromedp.FromContext(ctx).Target.TargetID
	c.tabs[id] = &chromeTab{ctx: ctx, cancel: cancel}
	c.active = id
	return success(map[string]any{"tab_id": string(id), "url": url}), nil
}

func (c *ChromeListener) closeTab(id target.ID) (Response, error) {
	if id == "" {
		return failure("tab_id is required"), nil
	}
	if _, ok := c.tabs[id]; !ok {
		c.tab(id)
	}
	t := c.tabs[id]
	if t.cancel != nil {
		// Cancelling a context created by chromedp.NewContext closes its tab.
		t.cancel()
	} else if err := chromedp.Run(t.ctx, page.Close()); err != nil {
		return failure(err.Error()), nil
	}
	delete(c.tabs, id)
	if c.active == id {
		c.active = ""
	}
	return success(map[string]any{"tab_id": string(id)}), nil
}

func (c *ChromeListener) activateTab(id target.ID) (Response, error) {
	if id == "" {
		return failure("tab_id is required"), nil
	}
	ctx, cancel := context.WithTimeout(c.tab(id), c.actionTimeout)
	defer cancel()
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return page.BringToFront().Do(ctx)
	}))
	if err != nil {
		return failure(err.Error()), nil
	}
	c.active = id
	return success(map[string]any{"tab_id": string(id)}), nil
}

func (c *ChromeListener) groupTabs(name string, ids []string) (Response, error) {
	if name == "" || len(ids) == 0 {
		return failure("name and tab_ids are required"), nil
	}
	infos, err := chromedp.Targets(c.browserCtx)
	if err != nil {
		return Response{}, err
	}
	known := make(map[string]bool, len(infos))
	for _, info := range infos {
		known[string(info.TargetID)] = true
	}
	var grouped []string
	for _, id := range ids {
		if known[id] {
			grouped = append(grouped, id)
		}
	}
	if len(grouped) == 0 {
		return failure("none of the tab ids exist"), nil
	}
	c.groups[name] = grouped
	return success(map[string]any{"group": name, "count": len(grouped)}), nil
}

func (c *ChromeListener) content(ctx context.Context) (Response, error) {
	var html, url, title string
	err := chromedp.Run(ctx,
		chromedp.Location(&url),
		chromedp.Title(&title),
		chromedp.ActionFunc(func(ctx context.Context) error {
			node, err := dom.GetDocument().Do(ctx)
			if err != nil {
				return err
			}
			html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return failure(err.Error()), nil
	}
	if len(html) > maxContentLength {
		html = html[:maxContentLength]
	}
	return success(map[string]any{"url": url, "title": title, "html": html}), nil
}

func success(payload map[string]any) Response {
	return Response{Success: true, Payload: payload}
}

func failure(msg string) Response {
	return Response{Success: false, Error: msg}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
