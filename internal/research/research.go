// Package research gathers market context for a product from Google
// Programmable Search and condenses it into a research summary.
package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/jonathan/catalyst/internal/config"
	"github.com/jonathan/catalyst/internal/llm"
	"github.com/jonathan/catalyst/internal/prompts"
	"github.com/jonathan/catalyst/internal/ratelimit"
	"github.com/jonathan/catalyst/internal/types"
)

// Provider is the rate gate key for search calls
const Provider = "google_cse"

// resultsPerQuery is the Custom Search page size ceiling
const resultsPerQuery = 10

// maxSummarySources bounds how many results are sent to the summarizer
const maxSummarySources = 15

// ErrBudgetExhausted is returned once the process-wide query budget is spent
var ErrBudgetExhausted = errors.New("search query budget exhausted")

// Budget caps the number of search calls made by the process
type Budget struct {
	mu   sync.Mutex
	max  int
	used int
}

// NewBudget creates a budget of max queries; zero or less means unlimited
func NewBudget(max int) *Budget {
	return &Budget{max: max}
}

// Take reserves one query
func (b *Budget) Take() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.max > 0 && b.used >= b.max {
		return ErrBudgetExhausted
	}
	b.used++
	return nil
}

// Used returns the number of queries issued so far
func (b *Budget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Config configures a Researcher
type Config struct {
	APIKey     string
	EngineID   string
	Endpoint   string // overrides the Custom Search endpoint
	Gate       *ratelimit.Gate
	Budget     *Budget
	Summarizer llm.Client // optional; a heuristic summary is used when nil
	Logger     zerolog.Logger
}

// Researcher runs the market research step
type Researcher struct {
	svc        *customsearch.Service
	cx         string
	gate       *ratelimit.Gate
	budget     *Budget
	summarizer llm.Client
	logger     zerolog.Logger
}

// NewResearcher creates a new Researcher instance
func NewResearcher(ctx context.Context, cfg Config) (*Researcher, error) {
	if err := config.Require("market research",
		config.Setting{Name: config.EnvSearchAPIKey, Value: cfg.APIKey},
		config.Setting{Name: config.EnvSearchEngineID, Value: cfg.EngineID},
	); err != nil {
		return nil, err
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create customsearch service: %w", err)
	}

	if cfg.Gate == nil {
		cfg.Gate = ratelimit.NewGate(config.DefaultSearchInterval)
	}
	if cfg.Budget == nil {
		cfg.Budget = NewBudget(config.DefaultMaxSearchQueries)
	}

	return &Researcher{
		svc:        svc,
		cx:         cfg.EngineID,
		gate:       cfg.Gate,
		budget:     cfg.Budget,
		summarizer: cfg.Summarizer,
		logger:     cfg.Logger,
	}, nil
}

// Research issues two queries: a category-tuned product search and a
// reviews/news/video search. One failed query still yields a result.
func (r *Researcher) Research(ctx context.Context, in *types.MarketResearchInput) (*types.MarketResearchResult, error) {
	product := strings.TrimSpace(in.ProductName)
	if product == "" {
		return nil, types.NewCollaboratorError(types.ErrorKindContract, "market research needs a product name", nil)
	}

	featureQuery, err := prompts.Render("research.json", "search-features", map[string]string{
		"ProductName": product,
		"Suffix":      prompts.ForCategory("search", in.Category),
	})
	if err != nil {
		return nil, err
	}
	reviewQuery, err := prompts.Render("research.json", "search-reviews", map[string]string{"ProductName": product})
	if err != nil {
		return nil, err
	}

	result := &types.MarketResearchResult{}
	seen := make(map[string]bool)
	var errs []error

	for _, q := range []string{featureQuery, reviewQuery} {
		sources, err := r.search(ctx, q)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			r.logger.Warn().Err(err).Str("query", q).Msg("search query failed")
			errs = append(errs, err)
			continue
		}
		result.QueryCount++
		for _, s := range sources {
			if s.URL == "" || seen[s.URL] {
				continue
			}
			seen[s.URL] = true
			result.Sources = append(result.Sources, s)
		}
	}

	if result.QueryCount == 0 {
		return nil, classify(errors.Join(errs...))
	}

	result.Features = featuresFrom(result.Sources)
	result.Reviews = reviewsFrom(result.Sources)
	result.Summary = heuristicSummary(in.ProductName, result)

	if r.summarizer != nil && len(result.Sources) > 0 {
		if err := r.summarize(ctx, in, result); err != nil {
			r.logger.Warn().Err(err).Msg("research summary failed, keeping heuristic summary")
		}
	}
	return result, nil
}

func (r *Researcher) search(ctx context.Context, query string) ([]types.Source, error) {
	if err := r.budget.Take(); err != nil {
		return nil, err
	}
	if err := r.gate.Wait(ctx, Provider); err != nil {
		return nil, err
	}

	resp, err := r.svc.Cse.List().Cx(r.cx).Q(query).Num(resultsPerQuery).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("search %q failed: %w", query, err)
	}

	sources := make([]types.Source, 0, len(resp.Items))
	for _, item := range resp.Items {
		sources = append(sources, types.Source{
			Title:   stripSymbols(item.Title),
			URL:     item.Link,
			Snippet: cleanSnippet(item.HtmlSnippet, item.Snippet),
			Kind:    classifySource(item.Link),
		})
	}
	return sources, nil
}

type summaryOutput struct {
	Summary  string   `json:"summary"`
	Features []string `json:"key_features"`
	Reviews  []string `json:"sentiments"`
}

var summarySchema = llm.OutputSchema{
	Name: "MarketSummary",
	Fields: []llm.SchemaField{
		{Name: "summary", Description: "3-5 sentence market overview", Required: true},
		{Name: "key_features", Type: `["string"]`, Description: "features buyers care about"},
		{Name: "sentiments", Type: `["string"]`, Description: "short review sentiments quoted from the results"},
	},
	Rules: []string{"Only use facts present in the search results."},
}

func (r *Researcher) summarize(ctx context.Context, in *types.MarketResearchInput, result *types.MarketResearchResult) error {
	var lines []string
	for i, s := range result.Sources {
		if i == maxSummarySources {
			break
		}
		lines = append(lines, fmt.Sprintf("- %s (%s): %s", s.Title, s.Kind, s.Snippet))
	}

	system, err := prompts.Get("research.json", "summarize-system")
	if err != nil {
		return err
	}
	user, err := prompts.Render("research.json", "summarize-user", map[string]string{
		"ProductName": in.ProductName,
		"Category":    in.Category,
		"Results":     strings.Join(lines, "\n"),
	})
	if err != nil {
		return err
	}

	raw, err := r.summarizer.GenerateJSON(ctx, llm.BuildStructuredPrompt(system, summarySchema, user), llm.TierLite)
	if err != nil {
		return err
	}
	var out summaryOutput
	if err := json.Unmarshal([]byte(llm.CleanJSONBlock(raw)), &out); err != nil {
		return fmt.Errorf("invalid summary JSON: %w", err)
	}
	if s := strings.TrimSpace(out.Summary); s != "" {
		result.Summary = s
	}
	if len(out.Features) > 0 {
		result.Features = out.Features
	}
	if len(out.Reviews) > 0 {
		result.Reviews = out.Reviews
	}
	return nil
}

func heuristicSummary(product string, result *types.MarketResearchResult) string {
	if len(result.Sources) == 0 {
		return fmt.Sprintf("No public market coverage found for %s.", product)
	}
	titles := make([]string, 0, 3)
	for _, s := range result.Sources {
		if len(titles) == 3 {
			break
		}
		if s.Title != "" {
			titles = append(titles, s.Title)
		}
	}
	return fmt.Sprintf("%d sources found for %s, including %d review mentions and %d feature mentions. Top coverage: %s.",
		len(result.Sources), product, len(result.Reviews), len(result.Features), strings.Join(titles, "; "))
}

// classify maps search failures onto step error kinds
func classify(err error) error {
	if errors.Is(err, ErrBudgetExhausted) {
		return types.NewCollaboratorError(types.ErrorKindUpstream, ErrBudgetExhausted.Error(), err)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden) {
		return types.NewCollaboratorError(types.ErrorKindMissingCredential, "search API rejected the credentials", err)
	}
	return err
}
