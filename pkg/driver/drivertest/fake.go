// Package drivertest provides an in-memory driver.Driver for tests.
//
// A Fake holds a tree of Nodes standing in for the page DOM. Navigate
// replaces the tree using the Fake's Loader, so tests can describe what
// each URL looks like without a real browser.
package drivertest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/entrhq/commonplayer/pkg/driver"
)

// Node is a fake page element.
type Node struct {
	ID       string
	Classes  []string
	Tag      string
	Text     string
	Attrs    map[string]string
	Children []*Node

	// HiddenFor is the number of lookups that miss this node before it
	// becomes findable, emulating late-rendered content.
	HiddenFor int
	// ClickErr is returned by Click when set.
	ClickErr error
	// OnClick runs after a successful click.
	OnClick func(n *Node)

	fake   *Fake
	clicks int
}

// Clicks returns how many times the node was clicked.
func (n *Node) Clicks() int {
	if n.fake == nil {
		return n.clicks
	}
	n.fake.mu.Lock()
	defer n.fake.mu.Unlock()
	return n.clicks
}

// SetAttr sets an attribute value.
func (n *Node) SetAttr(name, value string) {
	if n.Attrs == nil {
		n.Attrs = make(map[string]string)
	}
	n.Attrs[name] = value
}

func (n *Node) matches(sel driver.Selector) bool {
	switch sel.By {
	case driver.ByID:
		return n.ID == sel.Value
	case driver.ByClass:
		for _, c := range n.Classes {
			if c == sel.Value {
				return true
			}
		}
		return false
	case driver.ByTag:
		return strings.EqualFold(n.Tag, sel.Value)
	case driver.ByLinkText:
		return strings.EqualFold(n.Tag, "a") && strings.TrimSpace(n.Text) == sel.Value
	case driver.ByCSS:
		// Only simple "#id", ".class" and bare tag selectors are understood.
		switch {
		case strings.HasPrefix(sel.Value, "#"):
			return n.ID == sel.Value[1:]
		case strings.HasPrefix(sel.Value, "."):
			return n.matches(driver.Class(sel.Value[1:]))
		default:
			return strings.EqualFold(n.Tag, sel.Value)
		}
	}
	return false
}

// Loader returns the page tree for a URL. A nil root means an empty page.
type Loader func(url string) *Node

// Fake is a scriptable in-memory driver.
type Fake struct {
	mu sync.Mutex

	url    string
	root   *Node
	loader Loader
	quit   bool

	// NavigateErr, when set, fails every Navigate call without changing the URL.
	NavigateErr error
	// URLErr, when set, fails every CurrentURL call.
	URLErr error

	navigations []string
	quits       int
}

// NewFake returns a Fake on about:blank using loader for navigation.
func NewFake(loader Loader) *Fake {
	return &Fake{url: "about:blank", loader: loader}
}

// Navigate implements driver.Driver.
func (f *Fake) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.quit {
		return driver.ErrQuit
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.NavigateErr != nil {
		return f.NavigateErr
	}
	f.navigations = append(f.navigations, url)
	f.url = url
	f.root = nil
	if f.loader != nil {
		f.root = f.loader(url)
	}
	f.adopt(f.root)
	return nil
}

func (f *Fake) adopt(n *Node) {
	if n == nil {
		return
	}
	n.fake = f
	for _, c := range n.Children {
		f.adopt(c)
	}
}

// CurrentURL implements driver.Driver.
func (f *Fake) CurrentURL(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.quit {
		return "", driver.ErrQuit
	}
	if f.URLErr != nil {
		return "", f.URLErr
	}
	return f.url, nil
}

// Find implements driver.Driver.
func (f *Fake) Find(ctx context.Context, sel driver.Selector) (driver.Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.quit {
		return nil, driver.ErrQuit
	}
	if f.root == nil {
		return nil, driver.ErrNoSuchElement
	}
	return f.findLocked(f.root, sel, true)
}

func (f *Fake) findLocked(from *Node, sel driver.Selector, includeSelf bool) (driver.Element, error) {
	var stack []*Node
	if includeSelf {
		stack = append(stack, from)
	} else {
		for i := len(from.Children) - 1; i >= 0; i-- {
			stack = append(stack, from.Children[i])
		}
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.matches(sel) {
			if n.HiddenFor > 0 {
				n.HiddenFor--
			} else {
				return &element{fake: f, node: n}, nil
			}
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
	return nil, driver.ErrNoSuchElement
}

// Quit implements driver.Driver.
func (f *Fake) Quit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.quit {
		return driver.ErrQuit
	}
	f.quit = true
	f.quits++
	return nil
}

// Quitted reports whether Quit was called.
func (f *Fake) Quitted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quit
}

// Navigations returns the URLs navigated to, in order.
func (f *Fake) Navigations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.navigations...)
}

// Root returns the current page tree.
func (f *Fake) Root() *Node {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.root
}

type element struct {
	fake *Fake
	node *Node
}

func (e *element) Click(ctx context.Context) error {
	e.fake.mu.Lock()
	if e.fake.quit {
		e.fake.mu.Unlock()
		return driver.ErrQuit
	}
	if e.node.ClickErr != nil {
		e.fake.mu.Unlock()
		return e.node.ClickErr
	}
	e.node.clicks++
	onClick := e.node.OnClick
	e.fake.mu.Unlock()

	if onClick != nil {
		onClick(e.node)
	}
	return nil
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	e.fake.mu.Lock()
	defer e.fake.mu.Unlock()
	if e.fake.quit {
		return "", false, driver.ErrQuit
	}
	v, ok := e.node.Attrs[name]
	return v, ok, nil
}

func (e *element) Find(ctx context.Context, sel driver.Selector) (driver.Element, error) {
	e.fake.mu.Lock()
	defer e.fake.mu.Unlock()
	if e.fake.quit {
		return nil, driver.ErrQuit
	}
	return e.fake.findLocked(e.node, sel, false)
}

// NodeOf returns the fake node behind an element returned by a Fake.
func NodeOf(el driver.Element) *Node {
	if e, ok := el.(*element); ok {
		return e.node
	}
	return nil
}

// ErrBuild is a canned factory failure.
var ErrBuild = errors.New("drivertest: build failed")

// Factory builds Fakes and records them.
type Factory struct {
	mu sync.Mutex

	// Loader is passed to every built Fake.
	Loader Loader
	// Err, when set, fails every Build call.
	Err error

	built []*Fake
}

// Build implements driver.Factory.
func (f *Factory) Build(ctx context.Context) (driver.Driver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	fake := NewFake(f.Loader)
	f.built = append(f.built, fake)
	return fake, nil
}

// Built returns every Fake created so far.
func (f *Factory) Built() []*Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Fake(nil), f.built...)
}

// Last returns the most recently built Fake, or nil.
func (f *Factory) Last() *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.built) == 0 {
		return nil
	}
	return f.built[len(f.built)-1]
}
