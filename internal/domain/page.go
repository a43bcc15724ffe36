package domain

import (
	"context"
	"sort"
	"time"
)

// PageMeta is the page-level data returned alongside a document.
type PageMeta struct {
	SiteID      string     `json:"siteId"`
	PageID      string     `json:"pageId"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Environment string     `json:"environment"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

// PageStore is the persistence boundary for loading, saving and publishing
// a page's document. Concurrent writers resolve as last-write-wins here.
type PageStore interface {
	Load(ctx context.Context, siteID, pageID string) (*Document, PageMeta, error)
	Save(ctx context.Context, siteID, pageID string, doc *Document) error
	Publish(ctx context.Context, siteID, pageID string) error
}

// PageCatalog is implemented by stores that can also list and create pages.
type PageCatalog interface {
	ListPages(ctx context.Context, siteID string) ([]PageMeta, error)
	CreatePage(ctx context.Context, meta PageMeta, doc *Document) error
}

// ModuleSet is the read-only set of feature modules enabled for a site.
type ModuleSet map[string]struct{}

// NewModuleSet builds a ModuleSet from module keys.
func NewModuleSet(keys ...string) ModuleSet {
	s := make(ModuleSet, len(keys))
	for _, k := range keys {
		if k != "" {
			s[k] = struct{}{}
		}
	}
	return s
}

// Has reports whether key is enabled. The empty key (ungated) is always enabled.
func (s ModuleSet) Has(key string) bool {
	if key == "" {
		return true
	}
	_, ok := s[key]
	return ok
}

// Keys returns the enabled keys in sorted order.
func (s ModuleSet) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ModuleGate exposes the enabled modules of a site. Owned by the plan/RBAC
// subsystem; the editor only reads it.
type ModuleGate interface {
	EnabledModules(ctx context.Context, siteID string) (ModuleSet, error)
}

// Action is a permission-checked editor action.
type Action string

const (
	ActionEdit    Action = "edit"
	ActionPublish Action = "publish"
)

// PermissionChecker answers whether the current caller may perform an action
// on a page.
type PermissionChecker interface {
	Allowed(ctx context.Context, siteID, pageID string, action Action) (bool, error)
}

// TokenSource obtains or refreshes the access token used for Page Store calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type tokenKey struct{}

// WithAccessToken attaches an access token to ctx for the Page Store.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// AccessToken returns the token attached by WithAccessToken.
func AccessToken(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(tokenKey{}).(string)
	return t, ok && t != ""
}
