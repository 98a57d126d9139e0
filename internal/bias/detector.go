package bias

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/piconix/f1voice/internal/engine"
	"github.com/piconix/f1voice/internal/logging"
	"github.com/piconix/f1voice/internal/metrics"
)

var (
	// ErrNoValidArticles is returned before any provider call when no
	// article has both a title and content.
	ErrNoValidArticles = goerr.New("no valid articles to analyze")
	// ErrInvalidResponseFormat means the provider's text did not satisfy the
	// response contract.
	ErrInvalidResponseFormat = goerr.New("invalid response format")
)

const systemPrompt = "you are responsible for analyzing information and detecting bias.\n" +
	"Given an array of objects with``` {title: string; content: string}```, analyze the content and output the object with the most bias"

// Article is one news article submitted for comparison.
type Article struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type Type string

const (
	Positive Type = "positive"
	Negative Type = "negative"
)

// BiasedArticle identifies the most biased article of a set.
type BiasedArticle struct {
	Title  string `json:"title"`
	Type   Type   `json:"type"`
	Reason string `json:"reason"`
}

type Response struct {
	BiasedArticle BiasedArticle `json:"biasedArticle"`
}

// Detector asks a structured-output provider which article is the most
// biased. Results are neither cached nor persisted.
type Detector struct {
	completer engine.Completer
	metrics   *metrics.Metrics
}

// NewDetector creates a Detector. m may be nil.
func NewDetector(c engine.Completer, m *metrics.Metrics) *Detector {
	return &Detector{completer: c, metrics: m}
}

// Detect drops articles with a blank title or content and makes one provider
// call with the rest.
func (d *Detector) Detect(ctx context.Context, articles []Article) (Response, error) {
	logger := logging.From(ctx)
	valid := Filter(articles)
	if len(valid) == 0 {
		d.metrics.Bias("invalid_input")
		return Response{}, goerr.Wrap(ErrNoValidArticles, "detecting bias", goerr.V("submitted", len(articles)))
	}
	logger.Info("starting bias detection", "articles", len(valid), "dropped", len(articles)-len(valid))

	messages, err := buildPrompt(valid)
	if err != nil {
		return Response{}, goerr.Wrap(err, "building bias prompt")
	}

	text, err := d.completer.Complete(ctx, messages, engine.Options{
		ResponseFormat: &engine.ResponseFormat{Schema: schemaJSON()},
	})
	if err != nil {
		d.metrics.Bias("error")
		return Response{}, err
	}

	resp, err := Parse(text)
	if err != nil {
		d.metrics.Bias("invalid_response")
		logger.Error("failed to parse bias response", "error", err, "content", text)
		return Response{}, err
	}

	d.metrics.Bias("detected")
	logger.Info("bias detected", "title", resp.BiasedArticle.Title, "type", resp.BiasedArticle.Type)
	return resp, nil
}

// Filter returns the articles whose title and content are both non-blank,
// in their original order.
func Filter(articles []Article) []Article {
	var valid []Article
	for _, a := range articles {
		if strings.TrimSpace(a.Title) == "" || strings.TrimSpace(a.Content) == "" {
			continue
		}
		valid = append(valid, a)
	}
	return valid
}

func buildPrompt(articles []Article) ([]engine.Message, error) {
	data, err := json.Marshal(articles)
	if err != nil {
		return nil, err
	}
	return []engine.Message{
		engine.System(systemPrompt),
		engine.User(fmt.Sprintf("find the biased article\n```\n%s\n```", data)),
	}, nil
}

// Parse validates provider text against the response schema. One leading and
// one trailing double quote are stripped from the title.
func Parse(text string) (Response, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Response{}, goerr.Wrap(ErrInvalidResponseFormat, "decoding bias response", goerr.V("cause", err.Error()))
	}
	if err := compiledSchema.Validate(raw); err != nil {
		return Response{}, goerr.Wrap(ErrInvalidResponseFormat, "validating bias response", goerr.V("cause", err.Error()))
	}

	var resp Response
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return Response{}, goerr.Wrap(ErrInvalidResponseFormat, "decoding bias response", goerr.V("cause", err.Error()))
	}
	a := resp.BiasedArticle
	if a.Title == "" || a.Type == "" || a.Reason == "" {
		return Response{}, goerr.Wrap(ErrInvalidResponseFormat, "missing required fields")
	}

	resp.BiasedArticle.Title = strings.TrimSuffix(strings.TrimPrefix(a.Title, `"`), `"`)
	return resp, nil
}
