package service

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cloo-solutions/counsel/internal/domain"
	"github.com/cloo-solutions/counsel/internal/logging"
	"github.com/cloo-solutions/counsel/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

const (
	sourceLookupTimeout   = 5 * time.Second
	chunkRetrievalTimeout = 12 * time.Second

	defaultMaxChunks      = 100
	maxChunkChars         = 200_000
	maxSummaryChars       = 30_000
	maxOtherSummaryChars  = 300_000
	searchCandidatesLimit = 40
	searchConcurrency     = 4

	sourceCategoryCommentary = "commentary"
	sourceCategoryStatute    = "statute"
)

// primarySourcePattern matches canonical reference works that are searched at
// chunk granularity.
var primarySourcePattern = regexp.MustCompile(`(?i)(grüneberg|palandt|münch(ener|\.)?\s*komm|staudinger|\berman\b|beckok|beck'scher online|kommentar|gesetz|\bbgb\b|\bzpo\b|\bstgb\b|\bhgb\b)`)

// KnowledgeSourceRepository reads knowledge sources and their chunks.
type KnowledgeSourceRepository interface {
	// ListActive returns active, processed sources; an empty ids slice means all of them.
	ListActive(ctx context.Context, ids []string) ([]*domain.KnowledgeSource, error)
	CountChunks(ctx context.Context, sourceIDs []string) (map[string]int, error)
	SearchChunksSemantic(ctx context.Context, sourceIDs []string, embedding []float32, limit int) ([]*ChunkSearchResult, error)
	SearchChunksLexical(ctx context.Context, sourceIDs []string, query string, limit int) ([]*ChunkSearchResult, error)
}

// QueryEmbedder turns a query into a vector for semantic search.
type QueryEmbedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type RetrievalInput struct {
	SourceIDs  []string
	BaseQuery  string
	Expansions []string
	MaxChunks  int
}

// SourceSection is what one knowledge source contributes to the prompt.
type SourceSection struct {
	Source       *domain.KnowledgeSource
	Chunks       []*ChunkSearchResult
	Summary      string
	CitationHint string
	Primary      bool
}

type RetrievalResult struct {
	Sections    []SourceSection
	Text        string
	Identifiers map[string]struct{}
	SourceNames []string
}

// ChunkCount is the number of chunks across all sections.
func (r *RetrievalResult) ChunkCount() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, s := range r.Sections {
		n += len(s.Chunks)
	}
	return n
}

// Empty reports whether nothing was retrieved.
func (r *RetrievalResult) Empty() bool {
	return r == nil || len(r.Sections) == 0
}

type RouterConfig struct {
	SourceTimeout    time.Duration
	RetrievalTimeout time.Duration
}

func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		SourceTimeout:    sourceLookupTimeout,
		RetrievalTimeout: chunkRetrievalTimeout,
	}
}

// Router retrieves and ranks knowledge for a question. Retrieval is best
// effort: timeouts and failures shrink the result, they never fail the request.
type Router struct {
	repo     KnowledgeSourceRepository
	embedder QueryEmbedder
	cfg      RouterConfig
	logger   logging.Logger
}

// NewRouter creates a Router. embedder may be nil, in which case only lexical
// search runs.
func NewRouter(repo KnowledgeSourceRepository, embedder QueryEmbedder, logger logging.Logger) *Router {
	return NewRouterWithConfig(repo, embedder, DefaultRouterConfig(), logger)
}

func NewRouterWithConfig(repo KnowledgeSourceRepository, embedder QueryEmbedder, cfg RouterConfig, logger logging.Logger) *Router {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = sourceLookupTimeout
	}
	if cfg.RetrievalTimeout <= 0 {
		cfg.RetrievalTimeout = chunkRetrievalTimeout
	}
	return &Router{repo: repo, embedder: embedder, cfg: cfg, logger: logger}
}

type sourceCatalog struct {
	sources []*domain.KnowledgeSource
	counts  map[string]int
}

func (r *Router) Retrieve(ctx context.Context, input RetrievalInput) (*RetrievalResult, error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "chat.retrieve", telemetry.SpanAttributes{Operation: "retrieve"})
	defer span.End()

	result := &RetrievalResult{Identifiers: map[string]struct{}{}}
	if r == nil || r.repo == nil {
		return result, nil
	}

	catalog := WithFallback(ctx, FallbackOptions{Stage: StageSources, Timeout: r.cfg.SourceTimeout, Logger: r.logger}, sourceCatalog{},
		func(ctx context.Context) (sourceCatalog, error) {
			sources, err := r.repo.ListActive(ctx, input.SourceIDs)
			if err != nil {
				return sourceCatalog{}, fmt.Errorf("list knowledge sources: %w", err)
			}
			if len(sources) == 0 {
				return sourceCatalog{}, nil
			}
			ids := make([]string, len(sources))
			for i, s := range sources {
				ids[i] = s.ID
			}
			counts, err := r.repo.CountChunks(ctx, ids)
			if err != nil {
				return sourceCatalog{}, fmt.Errorf("count source chunks: %w", err)
			}
			return sourceCatalog{sources: sources, counts: counts}, nil
		})
	if len(catalog.sources) == 0 {
		return result, ctx.Err()
	}

	var primary, other []*domain.KnowledgeSource
	for _, s := range catalog.sources {
		if IsPrimarySource(s) {
			primary = append(primary, s)
		} else {
			other = append(other, s)
		}
	}

	var indexed []string
	for _, s := range primary {
		if catalog.counts[s.ID] > 0 {
			indexed = append(indexed, s.ID)
		}
	}

	maxChunks := input.MaxChunks
	if maxChunks <= 0 {
		maxChunks = defaultMaxChunks
	}
	var chunks []*ChunkSearchResult
	if len(indexed) > 0 {
		chunks = capChunks(mergeHybridResults(r.searchChunks(ctx, indexed, queryVariants(input.BaseQuery, input.Expansions))), maxChunks, maxChunkChars)
	}

	bySource := make(map[string][]*ChunkSearchResult)
	for _, c := range chunks {
		bySource[c.SourceID] = append(bySource[c.SourceID], c)
	}

	for _, s := range primary {
		section := SourceSection{Source: s, Primary: true, CitationHint: citationHint(s, true)}
		if catalog.counts[s.ID] > 0 {
			section.Chunks = bySource[s.ID]
			sort.SliceStable(section.Chunks, func(i, j int) bool {
				return section.Chunks[i].ChunkIndex < section.Chunks[j].ChunkIndex
			})
			if len(section.Chunks) == 0 {
				continue
			}
		} else if s.HasSummary() {
			section.Summary = truncateRunes(s.Summary, maxSummaryChars)
		} else {
			continue
		}
		result.Sections = append(result.Sections, section)
	}

	budget := maxOtherSummaryChars
	for _, s := range other {
		if !s.HasSummary() || budget <= 0 {
			continue
		}
		summary := s.Summary
		if len(summary) > budget {
			summary = truncateBytes(summary, budget)
		}
		budget -= len(summary)
		result.Sections = append(result.Sections, SourceSection{Source: s, Summary: summary, CitationHint: citationHint(s, false)})
	}

	result.Text = formatSections(result.Sections)
	for _, id := range ExtractIdentifiers(result.Text) {
		result.Identifiers[id] = struct{}{}
	}
	for _, s := range result.Sections {
		result.SourceNames = append(result.SourceNames, s.Source.Name)
	}

	retrievalDuration.Observe(time.Since(start).Seconds())
	retrievalChunks.Observe(float64(result.ChunkCount()))
	return result, nil
}

// searchCollector accumulates ranked lists so a timeout keeps what already arrived.
type searchCollector struct {
	mu    sync.Mutex
	lists []rankedList
	set   []bool
}

func newSearchCollector(n int) *searchCollector {
	return &searchCollector{lists: make([]rankedList, n), set: make([]bool, n)}
}

func (c *searchCollector) put(slot int, list rankedList) {
	c.mu.Lock()
	c.lists[slot] = list
	c.set[slot] = true
	c.mu.Unlock()
}

func (c *searchCollector) snapshot() []rankedList {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]rankedList, 0, len(c.lists))
	for i, ok := range c.set {
		if ok {
			out = append(out, c.lists[i])
		}
	}
	return out
}

// searchChunks runs semantic and lexical search for every query variant. One
// failing list does not cancel the others. Slots are indexed by variant and
// mode so the fused order does not depend on completion order.
func (r *Router) searchChunks(ctx context.Context, sourceIDs []string, variants []string) []rankedList {
	collector := newSearchCollector(len(variants) * 2)

	WithFallback(ctx, FallbackOptions{Stage: StageRetrieval, Timeout: r.cfg.RetrievalTimeout, Logger: r.logger}, false,
		func(ctx context.Context) (bool, error) {
			var g errgroup.Group
			g.SetLimit(searchConcurrency)
			for i, variant := range variants {
				if r.embedder != nil {
					g.Go(func() error {
						embedding, err := r.embedder.GenerateEmbedding(ctx, variant)
						if err != nil {
							return fmt.Errorf("embed query: %w", err)
						}
						results, err := r.repo.SearchChunksSemantic(ctx, sourceIDs, embedding, searchCandidatesLimit)
						if err != nil {
							return fmt.Errorf("semantic chunk search: %w", err)
						}
						collector.put(i*2, rankedList{results: results, semantic: true})
						return nil
					})
				}
				keywords := keywordQuery(variant)
				if keywords == "" {
					continue
				}
				g.Go(func() error {
					results, err := r.repo.SearchChunksLexical(ctx, sourceIDs, keywords, searchCandidatesLimit)
					if err != nil {
						return fmt.Errorf("lexical chunk search: %w", err)
					}
					collector.put(i*2+1, rankedList{results: results})
					return nil
				})
			}
			return true, g.Wait()
		})

	return collector.snapshot()
}

func queryVariants(base string, expansions []string) []string {
	seen := make(map[string]struct{}, len(expansions)+1)
	var out []string
	for _, q := range append([]string{base}, expansions...) {
		q = strings.TrimSpace(q)
		key := normalizeQuery(q)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
	}
	return out
}

// IsPrimarySource reports whether a source is a canonical reference work.
func IsPrimarySource(s *domain.KnowledgeSource) bool {
	if s == nil {
		return false
	}
	switch strings.ToLower(s.Category) {
	case sourceCategoryCommentary, sourceCategoryStatute:
		return true
	}
	return primarySourcePattern.MatchString(s.Name)
}

func citationHint(s *domain.KnowledgeSource, primary bool) string {
	if !primary {
		return "Nur als Hintergrundwissen verwenden. Nicht als Fundstelle zitieren."
	}
	if strings.EqualFold(s.Category, sourceCategoryStatute) {
		return fmt.Sprintf("Normen wörtlich zitieren (z. B. „§ 573 Abs. 2 BGB“) und als Quelle „%s“ angeben.", s.Name)
	}
	return fmt.Sprintf("Wörtlich zitieren als „%s, § …, Rn. …“. Nur Randnummern angeben, die im Text stehen.", s.Name)
}

func formatSections(sections []SourceSection) string {
	var b strings.Builder
	for i, s := range sections {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "### %s", s.Source.Name)
		if s.Source.Category != "" {
			fmt.Fprintf(&b, " (%s)", s.Source.Category)
		}
		fmt.Fprintf(&b, "\nZitierweise: %s\n", s.CitationHint)
		if len(s.Chunks) == 0 {
			b.WriteString("\n")
			b.WriteString(s.Summary)
			continue
		}
		for _, c := range s.Chunks {
			b.WriteString("\n")
			if c.Heading != "" {
				fmt.Fprintf(&b, "[%s]\n", c.Heading)
			}
			b.WriteString(c.Content)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// truncateBytes cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
