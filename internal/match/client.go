package match

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// HTTPScorer implementa Scorer contra una API de chat completions.
type HTTPScorer struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

func NewHTTPScorer(baseURL, apiKey, model string, logger *zap.Logger) *HTTPScorer {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &HTTPScorer{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

const scorePrompt = `You evaluate how well a resume matches a job description for the role %q.
Respond with a single JSON object: {"score": 0-100, "summary": "...", "strengths": [...], "gaps": [...], "suggestions": [...]}.

RESUME:
%s

JOB DESCRIPTION:
%s`

func (s *HTTPScorer) Score(ctx context.Context, resumeText, jdText, role string) (Insights, error) {
	reqBody := chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "user", Content: fmt.Sprintf(scorePrompt, role, resumeText, jdText)},
		},
	}
	raw, err := json.Marshal(reqBody)
	if err != nil {
		return Insights{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return Insights{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Insights{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Insights{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		if s.logger != nil {
			s.logger.Warn("scorer error", zap.Int("status", resp.StatusCode))
		}
		return Insights{}, fmt.Errorf("scorer http error: status=%d", resp.StatusCode)
	}

	var cr chatResponse
	if err := json.Unmarshal(respBody, &cr); err != nil {
		return Insights{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if cr.Error != nil {
		return Insights{}, fmt.Errorf("scorer api error: %s", cr.Error.Message)
	}
	if len(cr.Choices) == 0 || cr.Choices[0].Message.Content == "" {
		return Insights{}, fmt.Errorf("scorer empty response")
	}

	content := extractJSON(cr.Choices[0].Message.Content)
	var insights Insights
	if err := json.Unmarshal([]byte(content), &insights); err != nil {
		return Insights{}, fmt.Errorf("unmarshal insights: %w", err)
	}
	return insights, nil
}

// extractJSON tolera respuestas envueltas en fences de markdown.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if start := strings.Index(content, "{"); start >= 0 {
		if end := strings.LastIndex(content, "}"); end > start {
			return content[start : end+1]
		}
	}
	return content
}
