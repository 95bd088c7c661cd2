package catalog_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-merch/internal/catalog"
)

func sampleStore() *catalog.Memory {
	return catalog.NewMemory(
		[]catalog.Product{
			{ID: "shirt", Name: "Shirt", Price: 150000, Available: true},
			{ID: "cap", Name: "Cap", Price: 100000, Available: true},
			{ID: "mug", Name: "Mug", Price: 50000, Available: false},
		},
		[]catalog.ComboDefinition{
			{ID: "late", Name: "Late", Components: []catalog.Component{{ProductID: "cap", Quantity: 2}}, ComboPrice: 180000, Active: true, Position: 2},
			{ID: "duo", Name: "Duo", Components: []catalog.Component{{ProductID: "shirt", Quantity: 1}, {ProductID: "cap", Quantity: 1}}, ComboPrice: 220000, Active: true, Position: 1},
			{ID: "off", Name: "Off", Components: []catalog.Component{{ProductID: "mug", Quantity: 1}}, ComboPrice: 1, Active: false},
		},
	)
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

type countingStore struct {
	*catalog.Memory
	comboReads int
}

func (c *countingStore) ActiveCombos(ctx context.Context) ([]catalog.ComboDefinition, error) {
	c.comboReads++
	return c.Memory.ActiveCombos(ctx)
}

func TestActiveCombosReadThrough(t *testing.T) {
	mr, client := newRedis(t)
	store := &countingStore{Memory: sampleStore()}
	svc, err := catalog.NewService(catalog.ServiceConfig{Store: store, Cache: catalog.NewComboCache(client, time.Minute), Logger: zerolog.Nop()})
	require.NoError(t, err)

	ctx := context.Background()
	first, err := svc.ActiveCombos(ctx)
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, "duo", first[0].ID, "definitions are ordered by position")
	require.True(t, mr.Exists(catalog.ActiveCombosCacheKey))

	second, err := svc.ActiveCombos(ctx)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, store.comboReads)

	require.NoError(t, svc.InvalidateCombos(ctx))
	_, err = svc.ActiveCombos(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, store.comboReads)
}

func TestActiveCombosWithoutCache(t *testing.T) {
	svc, err := catalog.NewService(catalog.ServiceConfig{Store: sampleStore()})
	require.NoError(t, err)
	defs, err := svc.ActiveCombos(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 2)
}

func TestFindManyFiltersAvailability(t *testing.T) {
	svc, err := catalog.NewService(catalog.ServiceConfig{Store: sampleStore()})
	require.NoError(t, err)

	ctx := context.Background()
	products, err := svc.FindMany(ctx, []string{"shirt", "mug", "shirt", " ", "ghost"}, true)
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.Equal(t, "shirt", products[0].ID)

	products, err = svc.FindMany(ctx, []string{"mug"}, false)
	require.NoError(t, err)
	require.Len(t, products, 1)
}

func TestFindManyWrapsStoreErrors(t *testing.T) {
	store := sampleStore()
	store.Err = errors.New("boom")
	svc, err := catalog.NewService(catalog.ServiceConfig{Store: store})
	require.NoError(t, err)
	_, err = svc.FindMany(context.Background(), []string{"shirt"}, true)
	require.ErrorIs(t, err, store.Err)
}

func TestComboDefinitionHelpers(t *testing.T) {
	def := catalog.ComboDefinition{ID: "duo", Components: []catalog.Component{{ProductID: "shirt", Quantity: 1}, {ProductID: "cap", Quantity: 2}}, ComboPrice: 300000}
	require.True(t, def.Valid())
	require.True(t, def.Requires("cap"))
	require.False(t, def.Requires("mug"))

	total, ok := def.ListPrice(map[string]int64{"shirt": 150000, "cap": 100000})
	require.True(t, ok)
	require.Equal(t, int64(350000), total)

	_, ok = def.ListPrice(map[string]int64{"shirt": 150000})
	require.False(t, ok)

	def.Components[1].Quantity = 0
	require.False(t, def.Valid())
}

func TestCombosHandler(t *testing.T) {
	svc, err := catalog.NewService(catalog.ServiceConfig{Store: sampleStore()})
	require.NoError(t, err)
	handler := catalog.NewHandler(catalog.HandlerConfig{Service: svc})

	rr := httptest.NewRecorder()
	handler.Combos(rr, httptest.NewRequest(http.MethodGet, "/api/combos", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Success bool                      `json:"success"`
		Data    []catalog.ComboDefinition `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.Len(t, body.Data, 2)
}
