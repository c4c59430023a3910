package relevance

import (
	"testing"

	"github.com/educore/tutor/internal/fetch"
)

func page(id, title, text string) *fetch.Page {
	return &fetch.Page{LinkID: id, URL: "https://example.com/" + id, Title: title, Text: text}
}

func TestRankOrdersByRelevance(t *testing.T) {
	s := NewScorer(0.1)
	pages := []*fetch.Page{
		page("l1", "Cafeteria menu", "The cafeteria serves lunch at noon with vegetarian options."),
		page("l2", "School calendar", "The school holidays in 2025 begin in July and end in August. Holidays are listed per semester."),
	}

	ranked, err := s.Rank("When do the school holidays begin?", pages)
	if err != nil {
		t.Fatal(err)
	}
	if len(ranked) == 0 {
		t.Fatal("expected at least one relevant page")
	}
	if ranked[0].Page.LinkID != "l2" {
		t.Errorf("expected calendar page first, got %s", ranked[0].Page.LinkID)
	}
	if ranked[0].Score != 1.0 {
		t.Errorf("best hit should normalize to 1.0, got %f", ranked[0].Score)
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Score > ranked[i-1].Score {
			t.Error("results not sorted by descending score")
		}
	}
}

func TestRankNoMatchReturnsEmpty(t *testing.T) {
	s := NewScorer(0.1)
	pages := []*fetch.Page{
		page("l1", "Cafeteria menu", "The cafeteria serves lunch at noon."),
	}

	ranked, err := s.Rank("quantum chromodynamics lagrangian", pages)
	if err != nil {
		t.Fatal(err)
	}
	if len(ranked) != 0 {
		t.Errorf("expected no relevant pages, got %d", len(ranked))
	}
}

func TestRankThresholdFiltersWeakHits(t *testing.T) {
	strict := NewScorer(0.95)
	pages := []*fetch.Page{
		page("l1", "School calendar", "School holidays begin in July. Holidays, holidays, holidays."),
		page("l2", "Newsletter", "A single mention of holidays among many other unrelated announcements about sports, meals, uniforms and parking."),
	}

	ranked, err := strict.Rank("school holidays", pages)
	if err != nil {
		t.Fatal(err)
	}
	for _, sp := range ranked {
		if sp.Score < 0.95 {
			t.Errorf("page %s below threshold survived with score %f", sp.Page.LinkID, sp.Score)
		}
	}

	lenient := NewScorer(0.0)
	all, err := lenient.Rank("school holidays", pages)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) < len(ranked) {
		t.Error("lower threshold should never return fewer pages")
	}
}

func TestRankEmptyInput(t *testing.T) {
	s := NewScorer(0.1)
	ranked, err := s.Rank("anything", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(ranked) != 0 {
		t.Errorf("expected empty result for empty input, got %d", len(ranked))
	}
}
