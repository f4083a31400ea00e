package render

import (
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const reportCSS = `body{font-family:-apple-system,"Segoe UI",Roboto,"Noto Sans",sans-serif;color:#1c1917;max-width:960px;margin:0 auto;padding:1rem;}` +
	`table{width:100%;border-collapse:collapse;font-size:0.85rem;margin:0.5rem 0 1rem;}` +
	`th,td{border:1px solid #a8a29e;padding:0.35rem 0.45rem;text-align:left;vertical-align:top;}` +
	`thead th{background:#f1f5f9;font-weight:700;}` +
	`code{background:#f5f5f4;padding:0 0.2rem;border-radius:3px;}` +
	`html,body,*{-webkit-print-color-adjust:exact !important;print-color-adjust:exact !important;}` +
	`@media print{@page{size:auto;margin:12mm;} body{padding:0;max-width:none;}}`

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Fragment converts GitHub-flavoured Markdown to an HTML fragment.
func Fragment(markdown string) (string, error) {
	var out strings.Builder
	if err := md.Convert([]byte(markdown), &out); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	return out.String(), nil
}

// HTML wraps the converted markdown in a standalone document.
func HTML(title, markdown string) (string, error) {
	body, err := Fragment(markdown)
	if err != nil {
		return "", err
	}
	return "<!doctype html><html><head><meta charset='utf-8'><title>" + html.EscapeString(title) + "</title>" +
		"<style>" + reportCSS + "</style></head><body>" + body + "</body></html>", nil
}
