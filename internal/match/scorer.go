package match

import (
	"context"
	"errors"
)

// Insights es el resultado del scoring de un resume contra una
// descripcion de puesto. El computo en si es un colaborador externo
// opaco para este servicio.
type Insights struct {
	Score       int      `json:"score"`
	Summary     string   `json:"summary"`
	Strengths   []string `json:"strengths,omitempty"`
	Gaps        []string `json:"gaps,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// SummaryOnly recorta los insights al nivel del plan free.
func (i Insights) SummaryOnly() Insights {
	return Insights{Score: i.Score, Summary: i.Summary}
}

// Scorer define la interfaz del servicio de scoring.
type Scorer interface {
	Score(ctx context.Context, resumeText, jdText, role string) (Insights, error)
}

type disabledScorer struct{}

// NewDisabledScorer devuelve un scorer que siempre falla; se usa cuando
// no hay API de scoring configurada.
func NewDisabledScorer() Scorer {
	return disabledScorer{}
}

func (disabledScorer) Score(_ context.Context, _, _, _ string) (Insights, error) {
	return Insights{}, errors.New("scorer not configured")
}
