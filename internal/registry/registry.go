package registry

import (
	"fmt"
	"slices"
	"sort"

	"github.com/go-playground/validator/v10"

	"pagebuilder/internal/domain"
)

// AnyChild in AllowedChildren admits every type whose AllowedParents permits it.
const AnyChild = "*"

// BlockType is one catalog entry: defaults, nesting rules and publish obligations.
type BlockType struct {
	Name            string                                   `yaml:"name" json:"name" validate:"required"`
	Label           string                                   `yaml:"label" json:"label"`
	Module          string                                   `yaml:"module" json:"module,omitempty"`
	Root            bool                                     `yaml:"root" json:"root,omitempty"`
	AllowedParents  []string                                 `yaml:"allowedParents" json:"allowedParents,omitempty"`
	AllowedChildren []string                                 `yaml:"allowedChildren" json:"allowedChildren,omitempty"`
	Defaults        map[domain.Breakpoint]domain.PropertyBag `yaml:"defaults" json:"defaults,omitempty"`
	RequiredProps   []string                                 `yaml:"requiredProps" json:"requiredProps,omitempty"`
	RequiresAlt     bool                                     `yaml:"requiresAlt" json:"requiresAlt,omitempty"`
	AltProp         string                                   `yaml:"altProp" json:"altProp,omitempty"`
	RichTextProp    string                                   `yaml:"richTextProp" json:"richTextProp,omitempty"`
	References      []string                                 `yaml:"references" json:"references,omitempty"`
}

// Registry is a frozen catalog of block types. It is never mutated after
// construction, so sessions can share it freely.
type Registry struct {
	types map[string]*BlockType
	names []string
}

// New validates the given types and builds a Registry.
func New(types []BlockType) (*Registry, error) {
	v := validator.New()
	r := &Registry{types: make(map[string]*BlockType, len(types))}
	for i := range types {
		t := types[i]
		if err := v.Struct(t); err != nil {
			return nil, fmt.Errorf("block type #%d: %w", i, err)
		}
		if _, dup := r.types[t.Name]; dup {
			return nil, fmt.Errorf("block type %q declared twice", t.Name)
		}
		defaults := make(map[domain.Breakpoint]domain.PropertyBag, len(t.Defaults))
		for bp, bag := range t.Defaults {
			if !bp.Valid() {
				return nil, fmt.Errorf("block type %q: defaults: %w: %q", t.Name, domain.ErrUnknownBreakpoint, bp)
			}
			defaults[bp] = normalizeBag(bag)
		}
		t.Defaults = defaults
		if t.RequiresAlt && t.AltProp == "" {
			t.AltProp = "alt"
		}
		r.types[t.Name] = &t
		r.names = append(r.names, t.Name)
	}
	for _, t := range r.types {
		for _, ref := range slices.Concat(t.AllowedParents, t.AllowedChildren) {
			if ref == AnyChild {
				continue
			}
			if _, ok := r.types[ref]; !ok {
				return nil, fmt.Errorf("block type %q references unknown type %q", t.Name, ref)
			}
		}
	}
	sort.Strings(r.names)
	return r, nil
}

// Lookup returns the block type named name.
func (r *Registry) Lookup(name string) (*BlockType, bool) {
	t, ok := r.types[name]
	return t, ok
}

// Names returns every type name in sorted order.
func (r *Registry) Names() []string {
	return slices.Clone(r.names)
}

// AllowsChild reports whether childType may nest directly under parentType.
// Root types never nest. Otherwise both sides must agree: the parent lists the child (or "*") and the child's
// AllowedParents is empty or lists the parent.
func (r *Registry) AllowsChild(parentType, childType string) bool {
	parent, ok := r.types[parentType]
	if !ok {
		return false
	}
	child, ok := r.types[childType]
	if !ok || child.Root {
		return false
	}
	if !slices.Contains(parent.AllowedChildren, childType) && !slices.Contains(parent.AllowedChildren, AnyChild) {
		return false
	}
	return len(child.AllowedParents) == 0 || slices.Contains(child.AllowedParents, parentType)
}

// ModuleFor returns the module gating blockType, or "" when ungated.
func (r *Registry) ModuleFor(blockType string) string {
	if t, ok := r.types[blockType]; ok {
		return t.Module
	}
	return ""
}

// DefaultProps returns a fresh copy of the type's default property bags.
// Every breakpoint the type declares is copied; desktop is always present.
func (r *Registry) DefaultProps(blockType string) (map[domain.Breakpoint]domain.PropertyBag, error) {
	t, ok := r.types[blockType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownBlockType, blockType)
	}
	props := make(map[domain.Breakpoint]domain.PropertyBag, len(t.Defaults)+1)
	for bp, bag := range t.Defaults {
		props[bp] = bag.Clone()
	}
	if props[domain.BreakpointDesktop] == nil {
		props[domain.BreakpointDesktop] = domain.PropertyBag{}
	}
	return props, nil
}

// ReferenceProps lists the props of blockType that hold node ids.
func (r *Registry) ReferenceProps(blockType string) []string {
	if t, ok := r.types[blockType]; ok {
		return t.References
	}
	return nil
}

// normalizeBag converts YAML-decoded values into the JSON shapes documents
// carry after a save/load round trip (all numbers float64).
func normalizeBag(bag domain.PropertyBag) domain.PropertyBag {
	out := make(domain.PropertyBag, len(bag))
	for k, v := range bag {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = normalizeValue(vv)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = normalizeValue(vv)
		}
		return s
	default:
		return v
	}
}
