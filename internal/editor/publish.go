package editor

import (
	"strings"

	"golang.org/x/net/html"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/registry"
)

// Publish issue types.
const (
	IssueModuleDisabled   = "module_disabled"
	IssueMissingAlt       = "missing_alt"
	IssueMissingRequired  = "missing_required"
	IssueUnknownBlockType = "unknown_block_type"
)

// PublishResult lists every blocker found. Publish is allowed only when
// Errors is empty.
type PublishResult struct {
	Valid  bool           `json:"valid"`
	Errors []domain.Issue `json:"errors"`
}

// ValidatePublish walks the whole tree once, without stopping at the first
// problem, and collects module, alt-text and required-prop issues. Page-level
// checks such as title and slug are the caller's job.
func ValidatePublish(doc *domain.Document, reg *registry.Registry, modules domain.ModuleSet) PublishResult {
	var issues []domain.Issue
	stack := []string{doc.RootID}
	seen := make(map[string]bool, len(doc.Nodes))
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n, ok := doc.Nodes[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		issues = append(issues, nodeIssues(n, reg, modules)...)
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
	return PublishResult{Valid: len(issues) == 0, Errors: issues}
}

func nodeIssues(n *domain.Node, reg *registry.Registry, modules domain.ModuleSet) []domain.Issue {
	bt, ok := reg.Lookup(n.Type)
	if !ok {
		return []domain.Issue{{Type: IssueUnknownBlockType, NodeID: n.ID}}
	}
	var issues []domain.Issue
	if !modules.Has(bt.Module) {
		issues = append(issues, domain.Issue{Type: IssueModuleDisabled, ModuleKey: bt.Module, NodeID: n.ID})
	}
	props, _ := ResolveNode(n, domain.BreakpointDesktop)
	if bt.RequiresAlt && isBlank(props[bt.AltProp]) {
		issues = append(issues, domain.Issue{Type: IssueMissingAlt, NodeID: n.ID, Prop: bt.AltProp})
	}
	if bt.RichTextProp != "" {
		if s, ok := props[bt.RichTextProp].(string); ok && richTextMissingAlt(s) {
			issues = append(issues, domain.Issue{Type: IssueMissingAlt, NodeID: n.ID, Prop: bt.RichTextProp})
		}
	}
	for _, p := range bt.RequiredProps {
		if isBlank(props[p]) {
			issues = append(issues, domain.Issue{Type: IssueMissingRequired, NodeID: n.ID, Prop: p})
		}
	}
	return issues
}

// richTextMissingAlt reports whether the fragment holds an <img> with no or
// blank alt attribute.
func richTextMissingAlt(fragment string) bool {
	if !strings.Contains(fragment, "<img") && !strings.Contains(fragment, "<IMG") {
		return false
	}
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "img" {
				continue
			}
			alt := ""
			for _, a := range tok.Attr {
				if a.Key == "alt" {
					alt = a.Val
				}
			}
			if strings.TrimSpace(alt) == "" {
				return true
			}
		}
	}
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	}
	return false
}
