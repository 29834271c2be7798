package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDB struct {
	err error
}

func (f fakeDB) Health(ctx context.Context) error { return f.err }

func (f fakeDB) PoolStats() map[string]interface{} {
	return map[string]interface{}{"max_conns": 10, "idle_conns": 2}
}

type fakeRedis struct {
	err error
}

func (f fakeRedis) Health(ctx context.Context) error { return f.err }

func getHealth(t *testing.T, h http.Handler) (int, healthResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestHealth_ReportsPoolStats(t *testing.T) {
	code, resp := getHealth(t, newRouter(fakeDB{}, nil))

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", resp.Status)
	assert.EqualValues(t, 10, resp.Pool["max_conns"])
	assert.EqualValues(t, 2, resp.Pool["idle_conns"])
}

func TestHealth_Unhealthy(t *testing.T) {
	code, resp := getHealth(t, newRouter(fakeDB{err: errors.New("db down")}, nil))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "db down", resp.Database)

	code, resp = getHealth(t, newRouter(fakeDB{}, fakeRedis{err: errors.New("redis down")}))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "redis down", resp.Redis)
}
