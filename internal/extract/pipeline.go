package extract

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/safeflow-app/receipts-backend/constants"
)

// Result is what a single pipeline invocation produces. Record always carries
// the four canonical fields.
type Result struct {
	Record      Record
	ProfileUsed string
	Degraded    bool
	ErrorDetail string
}

// Pipeline applies a profile's parser to baseline fields extracted upstream.
// It performs no I/O and is safe to invoke from any number of in-flight
// requests.
type Pipeline struct {
	registry *Registry
	logger   *slog.Logger
}

func NewPipeline(registry *Registry, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{registry: registry, logger: logger}
}

// Run resolves the requested profile, runs its parser over the coerced input
// text, and merges the output with the baseline fields. Two fallbacks keep the
// record persistable: an unknown profile routes to basic before any parsing
// (not a degradation), and a parser failure at runtime degrades to the
// baseline fields with the detail surfaced on the result.
//
// Merge order: variant defaults, then baseline, then the fields the parser
// actually located. A field the parser defaulted never clobbers a baseline
// value.
func (p *Pipeline) Run(rawText string, requested constants.ProfileName, baseline Record) Result {
	parser, fellBack := p.registry.Resolve(requested)
	used := parser.Name()
	if fellBack {
		p.logger.Info("pipeline.profile_fallback", "requested", string(requested), "used", used)
	}

	text := parserInput(rawText, baseline)
	merged, err := invoke(parser, text, baseline)
	if err != nil {
		p.logger.Error("pipeline.parser_failed", "profile", used, "error", err)
		return Result{
			Record:      EnsureCanonical(Clone(baseline)),
			ProfileUsed: used,
			Degraded:    true,
			ErrorDetail: err.Error(),
		}
	}

	p.logger.Debug("pipeline.parsed", "profile", used, "fields", len(merged))
	return Result{
		Record:      EnsureCanonical(merged),
		ProfileUsed: used,
	}
}

// Profiles lists the registered profile names, sorted.
func (p *Pipeline) Profiles() []string {
	return p.registry.Profiles()
}

// parserInput coerces the pipeline input into the uniform text form every
// parser variant accepts: the JSON encoding of the baseline fields when any
// were extracted upstream, otherwise the raw model text itself.
func parserInput(rawText string, baseline Record) string {
	if len(baseline) == 0 {
		return rawText
	}
	b, err := json.Marshal(baseline)
	if err != nil {
		return rawText
	}
	return string(b)
}

// invoke shields the pipeline from a parser that breaks the total-function
// contract at runtime.
func invoke(parser Parser, text string, baseline Record) (rec Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec = nil
			err = fmt.Errorf("parser %s: %v", parser.Name(), r)
		}
	}()
	found := parser.Extract(text)
	return Merge(Merge(parser.Defaults(), baseline), found), nil
}
