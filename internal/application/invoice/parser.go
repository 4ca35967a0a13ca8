package invoice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/invoiceflow/backend/internal/domain/shared"
	"github.com/invoiceflow/backend/internal/infrastructure/logger"
	"github.com/invoiceflow/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ErrAllParsersFailed is matched by the error returned when no parser produced a usable extraction
var ErrAllParsersFailed = errors.New("all document parsers failed")

// Document is an uploaded file handed to a document parser
type Document struct {
	FileName    string
	ContentType string
	Content     []byte
}

// Extraction is the raw structured output of a document parser
type Extraction struct {
	Parser string
	Raw    map[string]any
}

// DocumentParser extracts structured invoice data from a document
type DocumentParser interface {
	Name() string
	Parse(ctx context.Context, doc Document) (*Extraction, error)
}

// ConfigurableParser is implemented by parsers that may be missing credentials
type ConfigurableParser interface {
	Configured() bool
}

// ExtractionValidator decides whether an extraction is usable
type ExtractionValidator interface {
	Validate(raw map[string]any) error
}

// ParseObserver receives the outcome of every parser attempt
type ParseObserver interface {
	ObserveParse(ctx context.Context, parser string, duration time.Duration, err error)
	ObserveFallback(ctx context.Context, from, to string)
}

// ParseAttempt records one failed parser attempt
type ParseAttempt struct {
	Parser string
	Err    error
}

// ParseFailure is returned when every parser in the chain failed
type ParseFailure struct {
	Attempts []ParseAttempt
}

func (e *ParseFailure) Error() string {
	if len(e.Attempts) == 1 {
		return e.Attempts[0].Err.Error()
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Parser, a.Err))
	}
	return strings.Join(parts, "; ")
}

// Unwrap exposes each attempt's error
func (e *ParseFailure) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// Is matches ErrAllParsersFailed
func (e *ParseFailure) Is(target error) bool {
	return target == ErrAllParsersFailed
}

// LastParser returns the name of the last parser tried
func (e *ParseFailure) LastParser() string {
	if len(e.Attempts) == 0 {
		return ""
	}
	return e.Attempts[len(e.Attempts)-1].Parser
}

// ParserChain tries its parsers in order and returns the first usable extraction
type ParserChain struct {
	parsers   []DocumentParser
	validator ExtractionValidator
	observer  ParseObserver
	logger    *zap.Logger
}

// ParserChainOption configures a ParserChain
type ParserChainOption func(*ParserChain)

// WithExtractionValidator rejects extractions that fail validation
func WithExtractionValidator(v ExtractionValidator) ParserChainOption {
	return func(c *ParserChain) {
		c.validator = v
	}
}

// WithParseObserver reports attempts and fallbacks to the observer
func WithParseObserver(o ParseObserver) ParserChainOption {
	return func(c *ParserChain) {
		c.observer = o
	}
}

// NewParserChain creates a chain. The first parser is the primary one.
func NewParserChain(parsers []DocumentParser, log *zap.Logger, opts ...ParserChainOption) *ParserChain {
	if log == nil {
		log = zap.NewNop()
	}
	c := &ParserChain{
		parsers: parsers,
		logger:  log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the name of the primary parser
func (c *ParserChain) Name() string {
	if len(c.parsers) == 0 {
		return ""
	}
	return c.parsers[0].Name()
}

// Parse runs the document through the configured parsers until one succeeds
func (c *ParserChain) Parse(ctx context.Context, doc Document) (*Extraction, error) {
	active := c.configured()
	if len(active) == 0 {
		name := c.Name()
		if name == "" {
			name = "Document parser"
		}
		return nil, shared.NewDomainError("PARSER_NOT_CONFIGURED",
			fmt.Sprintf("%s API key not configured", name))
	}

	log := logger.LOr(ctx, c.logger).With(zap.String("file_name", doc.FileName))
	failure := &ParseFailure{}
	for i, parser := range active {
		if i > 0 {
			log.Warn("falling back to next document parser",
				zap.String("from", active[i-1].Name()),
				zap.String("to", parser.Name()),
			)
			telemetry.AddEvent(ctx, "parser_fallback", "from", active[i-1].Name(), "to", parser.Name())
			if c.observer != nil {
				c.observer.ObserveFallback(ctx, active[i-1].Name(), parser.Name())
			}
		}

		extraction, err := c.attempt(ctx, parser, doc)
		if err == nil {
			return extraction, nil
		}

		log.Warn("document parser failed",
			zap.String("parser", parser.Name()),
			zap.Error(err),
		)
		failure.Attempts = append(failure.Attempts, ParseAttempt{Parser: parser.Name(), Err: err})

		if ctx.Err() != nil {
			break
		}
	}

	return nil, failure
}

func (c *ParserChain) attempt(ctx context.Context, parser DocumentParser, doc Document) (*Extraction, error) {
	start := time.Now()
	var (
		extraction *Extraction
		err        error
	)
	telemetry.WithProfilingLabels(ctx, func(ctx context.Context) {
		extraction, err = parser.Parse(ctx, doc)
	}, "parser", parser.Name())
	if err == nil {
		err = c.validate(extraction)
	}
	if c.observer != nil {
		c.observer.ObserveParse(ctx, parser.Name(), time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}
	if extraction.Parser == "" {
		extraction.Parser = parser.Name()
	}
	return extraction, nil
}

func (c *ParserChain) validate(extraction *Extraction) error {
	if extraction == nil || extraction.Raw == nil {
		return errors.New("parser returned no data")
	}
	if c.validator == nil {
		return nil
	}
	if err := c.validator.Validate(extraction.Raw); err != nil {
		return fmt.Errorf("unusable extraction: %w", err)
	}
	return nil
}

func (c *ParserChain) configured() []DocumentParser {
	active := make([]DocumentParser, 0, len(c.parsers))
	for _, p := range c.parsers {
		if cp, ok := p.(ConfigurableParser); ok && !cp.Configured() {
			c.logger.Debug("skipping unconfigured document parser", zap.String("parser", p.Name()))
			continue
		}
		active = append(active, p)
	}
	return active
}
