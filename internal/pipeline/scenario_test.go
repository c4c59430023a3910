package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/educore/tutor/internal/corpus"
	"github.com/educore/tutor/internal/fetch"
	"github.com/educore/tutor/internal/llm"
	"github.com/educore/tutor/internal/models"
	"github.com/educore/tutor/internal/relevance"
)

// buildRouter wires real stages around an index, a link list, and mock
// completion providers, mirroring the production wiring.
func buildRouter(idx *corpus.Index, links []*models.Link, local, cloud llm.Completer) *Router {
	logger := zap.NewNop()
	retrieval := NewRetrievalStage(idx, local, testThreshold, testTopK, time.Millisecond, testMinAnswerChars, logger)
	fetcher := fetch.NewFetcher(time.Minute, 5*time.Second, 5000)
	link := NewLinkStage(stubLinks{links: links}, fetcher, relevance.NewScorer(0.1), cloud, 3, testMinAnswerChars, logger)
	general := NewGeneralStage(cloud, logger)
	return NewRouter(retrieval, link, general, logger)
}

func TestAnswerFromIngestedDocument(t *testing.T) {
	idx := newTestIndex()
	ctx := context.Background()
	if _, err := idx.Ingest(ctx, "a1", "d1", "geography", "the capital of Goiás is Goiânia"); err != nil {
		t.Fatal(err)
	}
	local := llm.NewMockCompleter(llm.MockTurn{Answer: "The capital of Goiás is Goiânia."})
	cloud := llm.NewMockCompleter(llm.MockTurn{Answer: "cloud should not answer this"})
	r := buildRouter(idx, nil, local, cloud)

	result, err := r.Ask(ctx, models.ModeHybrid, &Request{AgentID: "a1", Question: "What is the capital of Goiás?"})
	if err != nil {
		t.Fatal(err)
	}
	if result.StageUsed != models.StageRetrieval {
		t.Errorf("expected stage retrieval, got %s", result.StageUsed)
	}
	if !strings.Contains(result.Answer, "Goiânia") {
		t.Errorf("expected answer to mention Goiânia, got %q", result.Answer)
	}
	if n := len(cloud.Calls()); n != 0 {
		t.Errorf("cloud provider called %d times despite retrieval accept", n)
	}
}

func TestAnswerFromLinkWhenCorpusIrrelevant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>School holidays 2025</title></head><body>
			<nav>Home | About</nav>
			<p>The school holidays in 2025 run through July and again in December.</p>
			<footer>contact us</footer></body></html>`))
	}))
	defer srv.Close()

	idx := newTestIndex()
	ctx := context.Background()
	if _, err := idx.Ingest(ctx, "a1", "d1", "biology", "photosynthesis converts light energy into chemical energy in plant cells"); err != nil {
		t.Fatal(err)
	}
	local := llm.NewMockCompleter(llm.MockTurn{Answer: "local should not be reached"})
	cloud := llm.NewMockCompleter(llm.MockTurn{Answer: "School holidays in 2025 run through July and December."})
	links := []*models.Link{{ID: "l1", AgentID: "a1", URL: srv.URL, Title: "School holidays 2025"}}
	r := buildRouter(idx, links, local, cloud)

	result, err := r.Ask(ctx, models.ModeHybrid, &Request{AgentID: "a1", Question: "When are the school holidays in 2025?"})
	if err != nil {
		t.Fatal(err)
	}
	if result.StageUsed != models.StageLink {
		t.Errorf("expected stage link, got %s", result.StageUsed)
	}
	if n := len(local.Calls()); n != 0 {
		t.Errorf("local provider called %d times for sub-threshold corpus", n)
	}
}

func TestAnswerFromGeneralKnowledgeWhenAgentIsEmpty(t *testing.T) {
	local := llm.NewMockCompleter(llm.MockTurn{Answer: "local should not be reached"})
	cloud := llm.NewMockCompleter(llm.MockTurn{Answer: "Water boils at 100 degrees Celsius at sea level."})
	r := buildRouter(newTestIndex(), nil, local, cloud)

	result, err := r.Ask(context.Background(), models.ModeHybrid, &Request{AgentID: "a1", Question: "At what temperature does water boil?"})
	if err != nil {
		t.Fatal(err)
	}
	if result.StageUsed != models.StageGeneral {
		t.Errorf("expected stage general, got %s", result.StageUsed)
	}
}

func TestLocalOnlyMakesNoCloudCalls(t *testing.T) {
	idx := newTestIndex()
	ctx := context.Background()
	if _, err := idx.Ingest(ctx, "a1", "d1", "biology", "photosynthesis converts light energy into chemical energy in plant cells"); err != nil {
		t.Fatal(err)
	}
	local := llm.NewMockCompleter(llm.MockTurn{Answer: "local should not be reached"})
	cloud := llm.NewMockCompleter(llm.MockTurn{Answer: "cloud must never run"})
	r := buildRouter(idx, nil, local, cloud)

	result, err := r.Ask(ctx, models.ModeLocalOnly, &Request{AgentID: "a1", Question: "When are the school holidays in 2025?"})
	if err != nil {
		t.Fatal(err)
	}
	if result.StageUsed != models.StageNone {
		t.Errorf("expected stage none, got %s", result.StageUsed)
	}
	if result.Note == "" {
		t.Error("expected a populated note")
	}
	if n := len(cloud.Calls()); n != 0 {
		t.Errorf("cloud provider called %d times in LOCAL_ONLY", n)
	}
	if n := len(local.Calls()); n != 0 {
		t.Errorf("local provider called %d times for sub-threshold corpus", n)
	}
}
