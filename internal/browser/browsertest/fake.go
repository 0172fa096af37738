// Package browsertest provides an in-memory stand-in for a Playwright browser that
// scripts the notifier application: a login form, a session cookie, and titled pages.
// Unit tests drive the real page objects and bootstrap against it without a driver.
//
// Only the Playwright methods the suite calls are implemented; the embedded
// interfaces panic on anything else, which surfaces accidental new dependencies.
package browsertest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/playwright-community/playwright-go"
)

const (
	SessionCookie = "session_id"

	EmailLabel       = "Email *"
	PasswordSelector = "#password"
	SubmitName       = "Sign in"

	LoginTitle              = "Login | Notifier"
	NotificationStatusTitle = "Notification Status | Notifier"
	ProfileTitle            = "Profile | Notifier"
)

// ErrNoElement mimics a locator that resolves to nothing before its timeout.
var ErrNoElement = errors.New("timeout: waiting for locator")

// ErrStrictMode mimics a locator that resolves to several elements.
var ErrStrictMode = errors.New("strict mode violation: locator resolved to 2 elements")

// Faults injects failures into the fake.
type Faults struct {
	NewContextErr    error
	GotoErr          error
	StorageStateErr  error
	CloseErr         error
	DuplicateSubmit  bool
	SubmitDisabled   bool
	MissingEmailForm bool
}

// Browser is a fake playwright.Browser bound to one scripted App.
type Browser struct {
	playwright.Browser

	App    *App
	Faults Faults

	mu             sync.Mutex
	navigations    []string
	actions        []string
	contextsOpened int
	contextsClosed int
	tracesStarted  int
	tracesStopped  []string
	seededFrom     []string
}

// NewBrowser returns a fake browser for app.
func NewBrowser(app *App) *Browser {
	return &Browser{App: app}
}

// NewContext opens a fake context, seeding the session cookie from StorageStatePath.
func (b *Browser) NewContext(options ...playwright.BrowserNewContextOptions) (playwright.BrowserContext, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Faults.NewContextErr != nil {
		return nil, b.Faults.NewContextErr
	}

	c := &Context{browser: b}
	for _, opt := range options {
		if opt.StorageStatePath == nil {
			continue
		}
		b.seededFrom = append(b.seededFrom, *opt.StorageStatePath)
		token, err := readSessionToken(*opt.StorageStatePath)
		if err != nil {
			return nil, err
		}
		c.session = token
	}
	b.contextsOpened++
	return c, nil
}

func (b *Browser) record(action string) {
	b.mu.Lock()
	b.actions = append(b.actions, action)
	b.mu.Unlock()
}

// Navigations returns every URL passed to Goto, in order.
func (b *Browser) Navigations() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.navigations...)
}

// Actions returns the interaction log ("click:email", "fill:password", ...).
func (b *Browser) Actions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.actions...)
}

// ContextsOpened returns how many contexts were created.
func (b *Browser) ContextsOpened() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.contextsOpened
}

// ContextsClosed returns how many contexts were closed.
func (b *Browser) ContextsClosed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.contextsClosed
}

// SeededFrom returns the storage state paths contexts were created from.
func (b *Browser) SeededFrom() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.seededFrom...)
}

// TracesStarted returns how many traces were started.
func (b *Browser) TracesStarted() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tracesStarted
}

// TracesStopped returns the paths traces were written to.
func (b *Browser) TracesStopped() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.tracesStopped...)
}

// Context is a fake playwright.BrowserContext.
type Context struct {
	playwright.BrowserContext

	browser *Browser
	mu      sync.Mutex
	session string
	closed  bool
}

func (c *Context) SetDefaultTimeout(timeout float64)           {}
func (c *Context) SetDefaultNavigationTimeout(timeout float64) {}

func (c *Context) NewPage() (playwright.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("target closed")
	}
	return &Page{ctx: c}, nil
}

// StorageState returns the session cookie the fake app issued to this context.
func (c *Context) StorageState(path ...string) (*playwright.StorageState, error) {
	if err := c.browser.Faults.StorageStateErr; err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	state := &playwright.StorageState{
		Cookies: []playwright.Cookie{},
		Origins: []playwright.Origin{},
	}
	if c.session != "" {
		state.Cookies = append(state.Cookies, playwright.Cookie{
			Name:   SessionCookie,
			Value:  c.session,
			Domain: "example.test",
			Path:   "/",
		})
	}
	if len(path) > 0 && path[0] != "" {
		data, err := json.Marshal(state)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(path[0], data, 0o600); err != nil {
			return nil, err
		}
	}
	return state, nil
}

func (c *Context) Close(options ...playwright.BrowserContextCloseOptions) error {
	c.mu.Lock()
	already := c.closed
	c.closed = true
	c.mu.Unlock()
	if !already {
		c.browser.mu.Lock()
		c.browser.contextsClosed++
		c.browser.mu.Unlock()
	}
	return c.browser.Faults.CloseErr
}

func (c *Context) Tracing() playwright.Tracing {
	return &tracing{browser: c.browser}
}

func (c *Context) authenticated() bool {
	c.mu.Lock()
	token := c.session
	c.mu.Unlock()
	return c.browser.App.Valid(token)
}

type tracing struct {
	playwright.Tracing
	browser *Browser
}

func (t *tracing) Start(options ...playwright.TracingStartOptions) error {
	t.browser.mu.Lock()
	t.browser.tracesStarted++
	t.browser.mu.Unlock()
	return nil
}

func (t *tracing) Stop(path ...string) error {
	t.browser.mu.Lock()
	defer t.browser.mu.Unlock()
	if len(path) > 0 {
		t.browser.tracesStopped = append(t.browser.tracesStopped, path[0])
	}
	return nil
}

// Page is a fake playwright.Page.
type Page struct {
	playwright.Page

	ctx      *Context
	mu       sync.Mutex
	url      string
	path     string
	email    string
	password string
}

func (p *Page) Goto(rawURL string, options ...playwright.PageGotoOptions) (playwright.Response, error) {
	b := p.ctx.browser
	b.mu.Lock()
	b.navigations = append(b.navigations, rawURL)
	gotoErr := b.Faults.GotoErr
	b.mu.Unlock()
	if gotoErr != nil {
		return nil, gotoErr
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	path := strings.TrimPrefix(u.Path, "/")
	if path != "login" && !p.ctx.authenticated() {
		path = "login"
	}

	p.mu.Lock()
	p.url = rawURL
	p.path = path
	p.mu.Unlock()
	return nil, nil
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) Title() (string, error) {
	p.mu.Lock()
	path := p.path
	p.mu.Unlock()
	return p.ctx.browser.App.Title(path), nil
}

func (p *Page) Content() (string, error) {
	title, _ := p.Title()
	return "<html><head><title>" + title + "</title></head><body></body></html>", nil
}

func (p *Page) Close(options ...playwright.PageCloseOptions) error {
	return nil
}

func (p *Page) GetByLabel(text interface{}, options ...playwright.PageGetByLabelOptions) playwright.Locator {
	label, _ := text.(string)
	return &Locator{page: p, field: "email", missing: label != EmailLabel || p.ctx.browser.Faults.MissingEmailForm}
}

func (p *Page) Locator(selector string, options ...playwright.PageLocatorOptions) playwright.Locator {
	return &Locator{page: p, field: "password", missing: selector != PasswordSelector}
}

func (p *Page) GetByRole(role playwright.AriaRole, options ...playwright.PageGetByRoleOptions) playwright.Locator {
	missing := role != *playwright.AriaRoleButton
	for _, opt := range options {
		switch name := opt.Name.(type) {
		case string:
			missing = missing || !strings.Contains(strings.ToLower(SubmitName), strings.ToLower(name))
		case *regexp.Regexp:
			missing = missing || !name.MatchString(SubmitName)
		}
	}
	return &Locator{page: p, field: "submit", missing: missing}
}

func (p *Page) onLoginPage() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.path == "login"
}

// pwLocator lets Locator embed the interface without a field named Locator
// hiding the interface's own Locator method.
type pwLocator = playwright.Locator

// Locator is a fake playwright.Locator for one of the three login controls.
type Locator struct {
	pwLocator

	page    *Page
	field   string
	missing bool
}

func (l *Locator) resolve() error {
	if l.missing || !l.page.onLoginPage() {
		return fmt.Errorf("%s: %w", l.field, ErrNoElement)
	}
	if l.field == "submit" && l.page.ctx.browser.Faults.DuplicateSubmit {
		return fmt.Errorf("%s: %w", l.field, ErrStrictMode)
	}
	return nil
}

func (l *Locator) Click(options ...playwright.LocatorClickOptions) error {
	if err := l.resolve(); err != nil {
		return err
	}
	l.page.ctx.browser.record("click:" + l.field)
	if l.field == "submit" {
		l.submit()
	}
	return nil
}

func (l *Locator) Fill(value string, options ...playwright.LocatorFillOptions) error {
	if err := l.resolve(); err != nil {
		return err
	}
	l.page.ctx.browser.record("fill:" + l.field)
	l.page.mu.Lock()
	defer l.page.mu.Unlock()
	switch l.field {
	case "email":
		l.page.email = value
	case "password":
		l.page.password = value
	default:
		return fmt.Errorf("%s is not editable", l.field)
	}
	return nil
}

func (l *Locator) WaitFor(options ...playwright.LocatorWaitForOptions) error {
	if err := l.resolve(); err != nil {
		return err
	}
	l.page.ctx.browser.record("wait:" + l.field)
	return nil
}

func (l *Locator) IsEnabled(options ...playwright.LocatorIsEnabledOptions) (bool, error) {
	if err := l.resolve(); err != nil {
		return false, err
	}
	if l.field == "submit" && l.page.ctx.browser.Faults.SubmitDisabled {
		return false, nil
	}
	return true, nil
}

func (l *Locator) submit() {
	p := l.page
	p.mu.Lock()
	email, password := p.email, p.password
	p.mu.Unlock()

	token, ok := p.ctx.browser.App.Login(email, password)
	if !ok {
		return
	}
	p.ctx.mu.Lock()
	p.ctx.session = token
	p.ctx.mu.Unlock()

	p.mu.Lock()
	p.path = "notifier/notification-status"
	p.mu.Unlock()
}

func readSessionToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read storage state %s: %w", path, err)
	}
	var state playwright.StorageState
	if err := json.Unmarshal(data, &state); err != nil {
		return "", fmt.Errorf("parse storage state %s: %w", path, err)
	}
	for _, c := range state.Cookies {
		if c.Name == SessionCookie {
			return c.Value, nil
		}
	}
	return "", nil
}

var (
	_ playwright.Browser        = (*Browser)(nil)
	_ playwright.BrowserContext = (*Context)(nil)
	_ playwright.Tracing        = (*tracing)(nil)
	_ playwright.Page           = (*Page)(nil)
	_ playwright.Locator        = (*Locator)(nil)
)
