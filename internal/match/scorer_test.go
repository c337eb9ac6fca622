package match

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestHTTPScorerParsesInsights(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("request decode failed: %v", err)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		// Respuesta envuelta en fences, como suelen venir.
		content := "```json\n{\"score\":82,\"summary\":\"solid fit\",\"gaps\":[\"kubernetes\"]}\n```"
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		})
	}))
	defer srv.Close()

	scorer := NewHTTPScorer(srv.URL, "key", "gpt-test", zap.NewNop())
	insights, err := scorer.Score(context.Background(), "resume", "jd", "backend engineer")
	if err != nil {
		t.Fatalf("expected score success, got %v", err)
	}
	if insights.Score != 82 || insights.Summary != "solid fit" {
		t.Fatalf("unexpected insights: %+v", insights)
	}
	if len(insights.Gaps) != 1 || insights.Gaps[0] != "kubernetes" {
		t.Fatalf("unexpected gaps: %v", insights.Gaps)
	}
}

func TestHTTPScorerErrorStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	scorer := NewHTTPScorer(srv.URL, "key", "gpt-test", zap.NewNop())
	if _, err := scorer.Score(context.Background(), "resume", "jd", "role"); err == nil {
		t.Fatalf("expected error on upstream failure")
	}
}

func TestSummaryOnlyStripsDetail(t *testing.T) {
	full := Insights{
		Score:       70,
		Summary:     "ok",
		Strengths:   []string{"go"},
		Gaps:        []string{"sql"},
		Suggestions: []string{"add metrics"},
	}
	trimmed := full.SummaryOnly()
	if trimmed.Score != 70 || trimmed.Summary != "ok" {
		t.Fatalf("expected score and summary kept, got %+v", trimmed)
	}
	if trimmed.Strengths != nil || trimmed.Gaps != nil || trimmed.Suggestions != nil {
		t.Fatalf("expected detail stripped, got %+v", trimmed)
	}
}

func TestExtractJSON(t *testing.T) {
	cases := map[string]string{
		`{"score":1}`:                        `{"score":1}`,
		"```json\n{\"score\":1}\n```":        `{"score":1}`,
		"Here you go: {\"score\":1} thanks.": `{"score":1}`,
	}
	for in, want := range cases {
		if got := extractJSON(in); got != want {
			t.Fatalf("extractJSON(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDisabledScorer(t *testing.T) {
	if _, err := NewDisabledScorer().Score(context.Background(), "r", "j", ""); err == nil {
		t.Fatalf("expected disabled scorer to fail")
	}
}
