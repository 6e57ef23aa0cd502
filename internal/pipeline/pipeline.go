package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.io/infrasutra/inboxsweep/internal/parser"
	"github.io/infrasutra/inboxsweep/internal/subscription"
)

// Extractor is an external structured-extraction capability. A returned
// error sends the pipeline down the fallback path.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]subscription.ParsedMessage, error)
}

type Path string

const (
	PathNone     Path = "none"
	PathAI       Path = "ai"
	PathFallback Path = "fallback"
)

// Result is the outcome of one run.
type Result struct {
	Subscriptions []subscription.Subscription
	Messages      []subscription.ParsedMessage
	Path          Path
	// AIError is the extractor failure that caused a fallback, if any.
	AIError error
}

type Option func(*Pipeline)

func WithBasicExtractor(extractor *parser.Extractor) Option {
	return func(p *Pipeline) {
		if extractor != nil {
			p.basic = extractor
		}
	}
}

func WithAggregatorOptions(opts ...subscription.Option) Option {
	return func(p *Pipeline) {
		p.aggregatorOpts = append(p.aggregatorOpts, opts...)
	}
}

type Pipeline struct {
	ai             Extractor
	basic          *parser.Extractor
	aggregatorOpts []subscription.Option
	logger         *slog.Logger
}

// New builds a pipeline. ai may be nil, in which case every run uses the
// fallback extractor.
func New(ai Extractor, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		ai:     ai,
		basic:  parser.NewExtractor(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process returns the subscriptions found in text. It never fails; zero
// subscriptions is the only failure signal.
func (p *Pipeline) Process(ctx context.Context, text string) []subscription.Subscription {
	return p.Run(ctx, text).Subscriptions
}

// Run is Process with details about how the result was produced.
func (p *Pipeline) Run(ctx context.Context, text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Subscriptions: []subscription.Subscription{}, Messages: []subscription.ParsedMessage{}, Path: PathNone}
	}

	result := Result{Path: PathFallback}
	if p.ai != nil {
		messages, err := p.ai.Extract(ctx, text)
		if err == nil {
			result.Path = PathAI
			result.Messages = messages
		} else {
			p.logger.Warn("ai extraction failed, using fallback", "error", err)
			result.AIError = err
		}
	}

	if result.Path == PathFallback {
		result.Messages = p.extractBasic(text)
	}
	if result.Messages == nil {
		result.Messages = []subscription.ParsedMessage{}
	}

	result.Subscriptions = subscription.NewAggregator(p.aggregatorOpts...).Aggregate(result.Messages)
	p.logger.Debug("pipeline run complete",
		"path", result.Path,
		"messages", len(result.Messages),
		"subscriptions", len(result.Subscriptions),
	)
	return result
}

func (p *Pipeline) extractBasic(text string) []subscription.ParsedMessage {
	messages := []subscription.ParsedMessage{}
	for section := range parser.Sections(text) {
		if strings.TrimSpace(section) == "" {
			continue
		}
		if message, ok := p.basic.ExtractBasic(section); ok {
			messages = append(messages, message)
		}
	}
	return messages
}
