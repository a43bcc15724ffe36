package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("landing_page",
		mcp.WithPromptDescription("Guide through building a landing page from catalog blocks"),
		mcp.WithArgument("topic",
			mcp.ArgumentDescription("Product or topic of the landing page"),
			mcp.RequiredArgument(),
		),
	), s.handleLandingPagePrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("responsive_review",
		mcp.WithPromptDescription("Review a page at every breakpoint and fix tablet/mobile overrides"),
		mcp.WithArgument("pageId",
			mcp.ArgumentDescription("ID of the page to review"),
			mcp.RequiredArgument(),
		),
	), s.handleResponsiveReviewPrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("publish_checklist",
		mcp.WithPromptDescription("Fix every publish blocker of a page and publish it"),
		mcp.WithArgument("pageId",
			mcp.ArgumentDescription("ID of the page to publish"),
			mcp.RequiredArgument(),
		),
	), s.handlePublishChecklistPrompt)
}

func (s *Server) handleLandingPagePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	topic := req.Params.Arguments["topic"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Build a landing page for: %s", topic),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Build a landing page about "%s". Follow these steps:

1. Read pagebuilder://catalog to see which block types exist and how they nest
2. Use create_page with a title and slug, or open_page on an existing page
3. Add a hero block at the top of the root with add_block and set its heading with update_block_props
4. Add a section, then columns inside it, and fill each column with heading, text and image blocks
5. Give every image an "alt" prop; publishing is refused without it
6. Finish with a section holding a button that links to the signup page
7. Run validate_publish and fix what it reports, then save_page

Use undo if a step goes wrong; every tool call is one undo step.`, topic),
				},
			},
		},
	}, nil
}

func (s *Server) handleResponsiveReviewPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	pageID := req.Params.Arguments["pageId"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Review page %s at every breakpoint", pageID),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Review page %s for tablet and mobile. Follow these steps:

1. open_page and get_document to see the tree
2. For each block, call resolve_props at desktop, tablet and mobile
3. Where a narrow breakpoint inherits a value that does not fit (large font sizes, multi-column layouts), set an override with update_block_props and the breakpoint argument
4. Where an override is identical to the inherited value, remove it with clear_block_props
5. save_page when done`, pageID),
				},
			},
		},
	}, nil
}

func (s *Server) handlePublishChecklistPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	pageID := req.Params.Arguments["pageId"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Publish page %s", pageID),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Publish page %s. Follow these steps:

1. open_page, then validate_publish
2. For missing_alt, set the alt prop of the image (or add alt attributes to <img> tags inside rich text)
3. For missing_required, fill the named prop
4. For module_disabled, delete the block or replace it with an ungated one; modules cannot be enabled from here
5. Repeat validate_publish until it is clean, then publish_page`, pageID),
				},
			},
		},
	}, nil
}
