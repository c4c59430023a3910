// Package relevance scores fetched link pages against a question using an
// in-memory Bleve keyword index.
package relevance

import (
	"fmt"
	"sort"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/educore/tutor/internal/fetch"
)

// ScoredPage is a fetched page with its relevance score for a question.
// Score is normalized to [0, 1] relative to the best hit in the batch.
type ScoredPage struct {
	Page  *fetch.Page
	Score float64
}

// pageDoc is the shape indexed into Bleve for each page.
type pageDoc struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Scorer ranks page batches against questions. It builds a fresh in-memory
// index per batch so scores never leak between queries or agents.
type Scorer struct {
	threshold float64
}

// NewScorer creates a scorer. Pages whose normalized score falls below
// threshold are excluded from results.
func NewScorer(threshold float64) *Scorer {
	return &Scorer{threshold: threshold}
}

// Rank indexes the pages and returns those relevant to the question, best
// first. Returns an empty slice when no page clears the threshold.
func (s *Scorer) Rank(question string, pages []*fetch.Page) ([]*ScoredPage, error) {
	if len(pages) == 0 {
		return nil, nil
	}

	index, err := newMemIndex()
	if err != nil {
		return nil, err
	}
	defer index.Close()

	byID := make(map[string]*fetch.Page, len(pages))
	for i, p := range pages {
		id := fmt.Sprintf("page-%d", i)
		byID[id] = p
		doc := pageDoc{Title: p.Title, Content: p.Text}
		if err := index.Index(id, doc); err != nil {
			return nil, fmt.Errorf("index page %s: %w", p.URL, err)
		}
	}

	q := bleve.NewMatchQuery(question)
	req := bleve.NewSearchRequest(q)
	req.Size = len(pages)
	results, err := index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("relevance search: %w", err)
	}
	if len(results.Hits) == 0 {
		return nil, nil
	}

	best := results.Hits[0].Score
	if best <= 0 {
		return nil, nil
	}

	scored := make([]*ScoredPage, 0, len(results.Hits))
	for _, hit := range results.Hits {
		norm := hit.Score / best
		if norm < s.threshold {
			continue
		}
		scored = append(scored, &ScoredPage{Page: byID[hit.ID], Score: norm})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return scored, nil
}

// newMemIndex builds an in-memory Bleve index with the standard analyzer
// (lowercase + tokenize, no stemming) over title and content.
func newMemIndex() (bleve.Index, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	im.DefaultMapping = docMapping

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("create relevance index: %w", err)
	}
	return index, nil
}
