// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/olegiv/pagecraft/internal/store"
)

// htmlSanitizer uses bluemonday's UGCPolicy which allows safe HTML tags for
// user-generated content while stripping scripts and event handlers.
var htmlSanitizer = bluemonday.UGCPolicy()

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Block is one section as the page template sees it.
type Block struct {
	ID    string
	Slug  string
	Title string
	HTML  template.HTML
}

// markdownLayout is the part of a layout document the renderer understands.
type markdownLayout struct {
	Markdown string `json:"markdown"`
}

// SectionBlock turns a published section into a renderable block. Legacy
// content_html wins; otherwise a top-level "markdown" field of the layout
// is converted. Both paths are sanitized.
func SectionBlock(p store.PublishedSection) (Block, error) {
	body, err := SectionHTML(p.LayoutJSON, p.ContentHTML)
	if err != nil {
		return Block{}, fmt.Errorf("rendering section %s: %w", p.Slug, err)
	}
	return Block{ID: p.SectionID, Slug: p.Slug, Title: p.Title, HTML: body}, nil
}

// SectionBlocks renders every section, skipping none.
func SectionBlocks(sections []store.PublishedSection) ([]Block, error) {
	blocks := make([]Block, 0, len(sections))
	for _, p := range sections {
		b, err := SectionBlock(p)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

// SectionHTML returns the sanitized body of a section.
func SectionHTML(layout json.RawMessage, contentHTML string) (template.HTML, error) {
	if strings.TrimSpace(contentHTML) != "" {
		return template.HTML(htmlSanitizer.Sanitize(contentHTML)), nil
	}

	var doc markdownLayout
	if len(layout) > 0 && json.Unmarshal(layout, &doc) != nil {
		// Layouts that are not objects carry no markdown.
		return "", nil
	}
	if strings.TrimSpace(doc.Markdown) == "" {
		return "", nil
	}

	var buf bytes.Buffer
	if err := markdown.Convert([]byte(doc.Markdown), &buf); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}
	return template.HTML(htmlSanitizer.SanitizeBytes(buf.Bytes())), nil
}
