package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckReportsPerDependency(t *testing.T) {
	reg := NewRegistry()
	reg.Register("postgres", CheckerFunc(func(ctx context.Context) error { return nil }))
	reg.Register("redis", CheckerFunc(func(ctx context.Context) error { return errors.New("connection refused") }))
	reg.Register("absent", nil)

	results := reg.Check(context.Background())

	assert.Len(t, results, 2)
	assert.NoError(t, results["postgres"])
	assert.Error(t, results["redis"])
	assert.False(t, Healthy(results))
}

func TestHealthyWithNoChecks(t *testing.T) {
	reg := NewRegistry()
	assert.True(t, Healthy(reg.Check(context.Background())))
}
