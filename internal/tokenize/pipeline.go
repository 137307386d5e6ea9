package tokenize

import (
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/mixsearch/internal/chunk"
	mserrors "github.com/Aman-CERP/mixsearch/internal/errors"
)

// Mode selects the tokenization strategy.
type Mode string

const (
	// ModeDocument tokenizes once at the configured CJK granularity.
	ModeDocument Mode = "document"
	// ModeQuery tokenizes at char and bigram granularity and merges both.
	ModeQuery Mode = "query"
)

// Config bundles the per-stage configuration of the pipeline.
type Config struct {
	Normalize NormalizeConfig `yaml:"normalize" json:"normalize"`
	Chunk     chunk.Config    `yaml:"chunk" json:"chunk"`
	Core      CoreConfig      `yaml:"core" json:"core"`
	Policy    PolicyConfig    `yaml:"policy" json:"policy"`
	Post      PostConfig      `yaml:"post" json:"post"`
	// BigramWeight scales the bigram pass in query-mode term frequencies.
	BigramWeight float64 `yaml:"bigram_weight" json:"bigram_weight"`
}

// DefaultConfig returns the default configuration of every stage.
func DefaultConfig() Config {
	return Config{
		Normalize:    DefaultNormalizeConfig(),
		Chunk:        chunk.DefaultConfig(),
		Core:         DefaultCoreConfig(),
		Policy:       DefaultPolicyConfig(),
		Post:         DefaultPostConfig(),
		BigramWeight: 1.0,
	}
}

// Options are per-call overrides.
type Options struct {
	Mode Mode `json:"mode"`
	// CJKMode overrides Core.CJKMode in document mode. Query mode always
	// runs both the char and bigram passes.
	CJKMode CJKMode `json:"cjkMode,omitempty"`
	// BigramWeight overrides Config.BigramWeight when positive.
	BigramWeight float64 `json:"bigramWeight,omitempty"`
}

// Stats is the term-frequency view of a tokenized text.
//
// In query mode TF adds the char and bigram passes, so a Latin word or a
// CJK single seen by both passes counts twice (the bigram share scaled by
// BigramWeight). Length is the unweighted token count of both passes and
// Tokens is their deduplicated union.
type Stats struct {
	TF          map[string]float64 `json:"tf"`
	Length      int                `json:"length"`
	UniqueTerms int                `json:"uniqueTerms"`
	Tokens      []string           `json:"tokens"`
}

func emptyStats() Stats {
	return Stats{TF: map[string]float64{}, Tokens: []string{}}
}

// Analysis is the document-mode output consumed by the index builder.
type Analysis struct {
	TF        map[string]int
	Positions map[string][]int
	Length    int
}

// Tokenizer runs the pipeline. It holds no mutable state and is safe for
// concurrent use.
type Tokenizer struct {
	cfg    Config
	logger *slog.Logger
}

// Option configures a Tokenizer.
type Option func(*Tokenizer)

// WithLogger sets the logger used to report recovered failures.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tokenizer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New creates a Tokenizer.
func New(cfg Config, opts ...Option) *Tokenizer {
	t := &Tokenizer{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Config returns the tokenizer configuration.
func (t *Tokenizer) Config() Config {
	return t.cfg
}

// Tokenize returns the token list for text. Document mode returns every
// surviving token in order; query mode returns the deduplicated union of
// the char and bigram passes.
func (t *Tokenizer) Tokenize(text string, opts Options) []string {
	return t.Stats(text, opts).Tokens
}

// Stats returns term frequencies, length and tokens for text. Empty input
// yields empty, non-nil fields.
func (t *Tokenizer) Stats(text string, opts Options) Stats {
	stats := emptyStats()
	if text == "" {
		return stats
	}

	err := t.guard("stats", func() {
		if opts.Mode == ModeQuery {
			stats = t.queryStats(text, opts)
		} else {
			stats = documentStats(t.Terms(text, opts))
		}
	})
	if err != nil {
		return emptyStats()
	}
	return stats
}

// Terms returns the document-mode tokens of text with their positions.
// Positions index the raw token stream before filtering, so gaps mark
// removed tokens.
func (t *Tokenizer) Terms(text string, opts Options) []Term {
	if text == "" {
		return []Term{}
	}
	core := t.coreConfig(opts.CJKMode)
	return t.pass(t.chunks(text), core)
}

// Analyze tokenizes a document for indexing. Unlike Stats it reports an
// internal failure as an error so the builder can skip the document.
func (t *Tokenizer) Analyze(text string) (*Analysis, error) {
	a := &Analysis{TF: map[string]int{}, Positions: map[string][]int{}}
	err := t.guard("analyze", func() {
		for _, term := range t.Terms(text, Options{Mode: ModeDocument}) {
			a.TF[term.Text]++
			a.Positions[term.Text] = append(a.Positions[term.Text], term.Position)
			a.Length++
		}
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (t *Tokenizer) queryStats(text string, opts Options) Stats {
	weight := opts.BigramWeight
	if weight <= 0 {
		weight = t.cfg.BigramWeight
	}
	if weight <= 0 {
		weight = 1.0
	}

	chunks := t.chunks(text)
	charTerms := t.pass(chunks, t.coreConfig(CJKChar))
	bigramTerms := t.pass(chunks, t.coreConfig(CJKBigram))

	stats := emptyStats()
	seen := make(map[string]struct{}, len(charTerms)+len(bigramTerms))
	add := func(terms []Term, w float64) {
		for _, term := range terms {
			stats.TF[term.Text] += w
			if _, ok := seen[term.Text]; !ok {
				seen[term.Text] = struct{}{}
				stats.Tokens = append(stats.Tokens, term.Text)
			}
		}
	}
	add(charTerms, 1.0)
	add(bigramTerms, weight)

	// Both passes count, matching the additive TF merge.
	stats.Length = len(charTerms) + len(bigramTerms)
	stats.UniqueTerms = len(stats.TF)
	return stats
}

func documentStats(terms []Term) Stats {
	stats := emptyStats()
	for _, term := range terms {
		stats.TF[term.Text]++
		stats.Tokens = append(stats.Tokens, term.Text)
	}
	stats.Length = len(terms)
	stats.UniqueTerms = len(stats.TF)
	return stats
}

// chunks normalizes and splits text. Case folding is left to the core
// scan when camel splitting needs the original case.
func (t *Tokenizer) chunks(text string) []string {
	ncfg := t.cfg.Normalize
	if t.cfg.Core.SplitCamel {
		ncfg.LowerCase = false
	}
	return chunk.Split(Normalize(text, ncfg), t.cfg.Chunk)
}

func (t *Tokenizer) coreConfig(mode CJKMode) CoreConfig {
	core := t.cfg.Core
	if mode != "" {
		core.CJKMode = mode
	}
	if t.cfg.Normalize.LowerCase {
		core.LowerCaseLatin = true
	}
	return core
}

// pass core-tokenizes every chunk with running positions, then applies the
// policy filter and post-processor.
func (t *Tokenizer) pass(chunks []string, core CoreConfig) []Term {
	var terms []Term
	pos := 0
	for _, c := range chunks {
		for _, tok := range CoreTokenize(c, core) {
			terms = append(terms, Term{Text: tok, Position: pos})
			pos++
		}
	}
	terms = ApplyPolicy(terms, t.cfg.Policy)
	return PostProcess(terms, t.cfg.Post)
}

func (t *Tokenizer) guard(op string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = mserrors.New(mserrors.ErrCodeTokenizeFailed, fmt.Sprintf("%s: %v", op, r), nil)
			t.logger.Warn("tokenize_recovered",
				slog.String("op", op),
				slog.String("panic", fmt.Sprint(r)))
		}
	}()
	fn()
	return nil
}
