package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/piconix/f1voice/internal/bias"
)

// readArticle loads one article from a text or PDF file. The first
// non-blank line is the title and the rest is the content; a file with a
// single line uses its base name as the title.
func readArticle(path string) (bias.Article, error) {
	var (
		body string
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		body, err = pdfText(path)
	} else {
		var data []byte
		data, err = os.ReadFile(path)
		body = string(data)
	}
	if err != nil {
		return bias.Article{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return splitArticle(filepath.Base(path), body), nil
}

func splitArticle(name, body string) bias.Article {
	body = strings.TrimSpace(body)
	title, rest, found := strings.Cut(body, "\n")
	rest = strings.TrimSpace(rest)
	if !found || rest == "" {
		return bias.Article{Title: strings.TrimSuffix(name, filepath.Ext(name)), Content: body}
	}
	return bias.Article{Title: strings.TrimSpace(title), Content: rest}
}

func pdfText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	data, err := io.ReadAll(plain)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
