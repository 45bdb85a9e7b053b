package polymarket

// gamma.go — Descubrimiento del mercado Up/Down activo vía Gamma API.

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/alejandrodnm/updownbot/internal/ports"
)

// gammaMarket es la respuesta de Gamma /markets. ClobTokenIDs y Outcomes
// llegan como strings JSON anidados.
type gammaMarket struct {
	Slug         string `json:"slug"`
	Question     string `json:"question"`
	StartDate    string `json:"startDate"`
	EndDate      string `json:"endDate"`
	Active       bool   `json:"active"`
	Closed       bool   `json:"closed"`
	ClobTokenIDs string `json:"clobTokenIds"`
	Outcomes     string `json:"outcomes"`
}

// WindowClient resuelve la ventana de 15 minutos activa para una serie
// Up/Down (p. ej. "bitcoin-up-or-down"). Implementa ports.WindowSource.
type WindowClient struct {
	client     *Client
	seriesSlug string
	now        func() time.Time
}

// NewWindowClient crea el resolver para la serie dada.
func NewWindowClient(client *Client, seriesSlug string) *WindowClient {
	return &WindowClient{
		client:     client,
		seriesSlug: seriesSlug,
		now:        time.Now,
	}
}

// CurrentWindow devuelve la ventana activa ahora mismo. Falla si ningún
// mercado de la serie cubre el instante actual.
func (wc *WindowClient) CurrentWindow(ctx context.Context) (domain.Window, error) {
	q := url.Values{}
	q.Set("series_slug", wc.seriesSlug)
	q.Set("active", "true")
	q.Set("closed", "false")
	q.Set("limit", "20")
	q.Set("order", "startDate")
	q.Set("ascending", "true")

	var markets []gammaMarket
	reqURL := wc.client.gammaBase + "/markets?" + q.Encode()
	if err := wc.client.get(ctx, wc.client.gammaLimiter, reqURL, &markets); err != nil {
		return domain.Window{}, fmt.Errorf("polymarket.CurrentWindow: %w", err)
	}

	now := wc.now().UTC()
	for _, m := range markets {
		w, err := toWindow(m)
		if err != nil {
			continue
		}
		if w.Active(now) {
			return w, nil
		}
	}
	return domain.Window{}, fmt.Errorf("polymarket.CurrentWindow: no active window for series %s", wc.seriesSlug)
}

// toWindow mapea un mercado Gamma a una ventana del dominio, emparejando
// cada token con su outcome por posición.
func toWindow(m gammaMarket) (domain.Window, error) {
	start, err := time.Parse(time.RFC3339, m.StartDate)
	if err != nil {
		return domain.Window{}, fmt.Errorf("parse startDate %q: %w", m.StartDate, err)
	}
	end, err := time.Parse(time.RFC3339, m.EndDate)
	if err != nil {
		return domain.Window{}, fmt.Errorf("parse endDate %q: %w", m.EndDate, err)
	}

	var tokenIDs, outcomes []string
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &tokenIDs); err != nil {
		return domain.Window{}, fmt.Errorf("parse clobTokenIds: %w", err)
	}
	if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err != nil {
		return domain.Window{}, fmt.Errorf("parse outcomes: %w", err)
	}
	if len(tokenIDs) != 2 || len(outcomes) != 2 {
		return domain.Window{}, fmt.Errorf("market %s: expected 2 outcomes, got %d/%d",
			m.Slug, len(outcomes), len(tokenIDs))
	}

	w := domain.Window{Slug: m.Slug, StartTime: start.UTC(), EndTime: end.UTC()}
	for i, name := range outcomes {
		o, err := outcomeFromName(name)
		if err != nil {
			return domain.Window{}, fmt.Errorf("market %s: %w", m.Slug, err)
		}
		w.Tokens[i] = domain.Token{TokenID: tokenIDs[i], Outcome: o}
	}
	if w.Tokens[0].Outcome == w.Tokens[1].Outcome {
		return domain.Window{}, fmt.Errorf("market %s: duplicate outcome %s", m.Slug, w.Tokens[0].Outcome)
	}
	return w, nil
}

func outcomeFromName(name string) (domain.Outcome, error) {
	switch name {
	case "Up", "UP", "up":
		return domain.OutcomeUp, nil
	case "Down", "DOWN", "down":
		return domain.OutcomeDown, nil
	}
	return "", fmt.Errorf("unknown outcome %q", name)
}

var _ ports.WindowSource = (*WindowClient)(nil)
