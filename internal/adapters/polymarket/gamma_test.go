package polymarket_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/updownbot/internal/adapters/polymarket"
	"github.com/alejandrodnm/updownbot/internal/domain"
)

// gammaFixture construye un mercado Gamma con los campos anidados como
// strings JSON, tal y como los devuelve la API real.
func gammaFixture(slug string, start, end time.Time, tokenIDs, outcomes []string) map[string]any {
	ids, _ := json.Marshal(tokenIDs)
	outs, _ := json.Marshal(outcomes)
	return map[string]any{
		"slug":         slug,
		"question":     "Bitcoin Up or Down?",
		"startDate":    start.UTC().Format(time.RFC3339),
		"endDate":      end.UTC().Format(time.RFC3339),
		"active":       true,
		"closed":       false,
		"clobTokenIds": string(ids),
		"outcomes":     string(outs),
	}
}

func gammaServer(t *testing.T, markets []map[string]any) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets", r.URL.Path)
		assert.Equal(t, "bitcoin-up-or-down", r.URL.Query().Get("series_slug"))
		assert.Equal(t, "true", r.URL.Query().Get("active"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(markets)
	}))
}

func TestCurrentWindow_PicksActiveWindow(t *testing.T) {
	now := time.Now().UTC()
	markets := []map[string]any{
		// Ventana anterior, ya expirada.
		gammaFixture("btc-1130", now.Add(-30*time.Minute), now.Add(-15*time.Minute),
			[]string{"tok-up-1", "tok-down-1"}, []string{"Up", "Down"}),
		// Ventana en curso.
		gammaFixture("btc-1145", now.Add(-5*time.Minute), now.Add(10*time.Minute),
			[]string{"tok-up-2", "tok-down-2"}, []string{"Up", "Down"}),
	}
	srv := gammaServer(t, markets)
	defer srv.Close()

	wc := polymarket.NewWindowClient(newTestClient(nil, srv), "bitcoin-up-or-down")
	w, err := wc.CurrentWindow(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "btc-1145", w.Slug)
	assert.Equal(t, "tok-up-2", w.Token(domain.OutcomeUp).TokenID)
	assert.Equal(t, "tok-down-2", w.Token(domain.OutcomeDown).TokenID)
	assert.WithinDuration(t, now.Add(10*time.Minute), w.EndTime, time.Second)
}

func TestCurrentWindow_OutcomeOrderFromPayload(t *testing.T) {
	// El orden de outcomes no está garantizado: el emparejamiento es
	// posicional contra clobTokenIds.
	now := time.Now().UTC()
	markets := []map[string]any{
		gammaFixture("btc-1145", now.Add(-5*time.Minute), now.Add(10*time.Minute),
			[]string{"tok-a", "tok-b"}, []string{"Down", "Up"}),
	}
	srv := gammaServer(t, markets)
	defer srv.Close()

	wc := polymarket.NewWindowClient(newTestClient(nil, srv), "bitcoin-up-or-down")
	w, err := wc.CurrentWindow(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "tok-b", w.Token(domain.OutcomeUp).TokenID)
	assert.Equal(t, "tok-a", w.Token(domain.OutcomeDown).TokenID)
}

func TestCurrentWindow_SkipsMalformedMarkets(t *testing.T) {
	now := time.Now().UTC()
	markets := []map[string]any{
		// Outcomes duplicados: inválido, se salta.
		gammaFixture("btc-bad", now.Add(-5*time.Minute), now.Add(10*time.Minute),
			[]string{"tok-a", "tok-b"}, []string{"Up", "Up"}),
		gammaFixture("btc-good", now.Add(-5*time.Minute), now.Add(10*time.Minute),
			[]string{"tok-up", "tok-down"}, []string{"Up", "Down"}),
	}
	srv := gammaServer(t, markets)
	defer srv.Close()

	wc := polymarket.NewWindowClient(newTestClient(nil, srv), "bitcoin-up-or-down")
	w, err := wc.CurrentWindow(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "btc-good", w.Slug)
}

func TestCurrentWindow_NoActiveWindow(t *testing.T) {
	srv := gammaServer(t, []map[string]any{})
	defer srv.Close()

	wc := polymarket.NewWindowClient(newTestClient(nil, srv), "bitcoin-up-or-down")
	_, err := wc.CurrentWindow(context.Background())
	assert.Error(t, err)
}
