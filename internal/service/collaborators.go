package service

import (
	"context"

	"pagebuilder/internal/domain"
)

// StaticModules is a ModuleGate that returns the same set for every site.
type StaticModules struct {
	Set domain.ModuleSet
}

func (m StaticModules) EnabledModules(context.Context, string) (domain.ModuleSet, error) {
	if m.Set == nil {
		return domain.NewModuleSet(), nil
	}
	return m.Set, nil
}

// StaticPermissions allows everything unless ReadOnly, which denies edit and
// publish.
type StaticPermissions struct {
	ReadOnly bool
}

func (p StaticPermissions) Allowed(context.Context, string, string, domain.Action) (bool, error) {
	return !p.ReadOnly, nil
}

// StaticToken is a TokenSource returning a fixed token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }
