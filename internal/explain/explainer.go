// Package explain turns a classification verdict into a short explanation a
// non-technical user can act on, using Claude on AWS Bedrock.
package explain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/phishguard/gateway/internal/classify"
)

// ErrUnavailable wraps every failure to produce an explanation.
var ErrUnavailable = errors.New("explainer unavailable")

const (
	maxTokens      = 300
	requestTimeout = 20 * time.Second
)

const systemPrompt = `You explain URL safety verdicts from a phishing detector to everyday users.
Write two or three plain sentences. Say whether the link looks dangerous and why,
based only on the verdict data you are given. If it is dangerous, tell the user
not to enter passwords or payment details. No markdown, no lists.`

type messenger interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Explainer asks a Claude model for verdict explanations.
type Explainer struct {
	messages messenger
	model    string
	logger   *slog.Logger
}

// NewBedrock creates an Explainer backed by Bedrock in region, using the
// default AWS credential chain.
func NewBedrock(ctx context.Context, region, model string, logger *slog.Logger) *Explainer {
	client := anthropic.NewClient(
		bedrock.WithLoadDefaultConfig(ctx, awsconfig.WithRegion(region)),
	)
	return &Explainer{messages: &client.Messages, model: model, logger: logger}
}

// Explain returns a short explanation of res.
func (e *Explainer) Explain(ctx context.Context, res *classify.Result) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	start := time.Now()
	msg, err := e.messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(res))),
		},
	})
	if err != nil {
		e.logger.Warn("explain: model call failed", "url", res.URL, "err", err)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		sb.WriteString(block.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("%w: empty response", ErrUnavailable)
	}

	e.logger.Debug("explain: done", "url", res.URL, "ms", time.Since(start).Milliseconds())
	return text, nil
}

func buildPrompt(res *classify.Result) string {
	verdict := "safe"
	if res.IsPhishing {
		verdict = "phishing"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\n", res.URL)
	fmt.Fprintf(&b, "Verdict: %s\n", verdict)
	fmt.Fprintf(&b, "Confidence: %.2f\n", res.Confidence)
	fmt.Fprintf(&b, "Threat level: %s\n", res.ThreatLevel)
	fmt.Fprintf(&b, "Sensitivity mode: %s (threshold %.2f)\n", res.SensitivityMode, res.ThresholdUsed)
	if len(res.Details) > 0 && string(res.Details) != "null" {
		fmt.Fprintf(&b, "Detector details: %s\n", truncate(string(res.Details), 2000))
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
