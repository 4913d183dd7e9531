package backenderr

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/agentcore/core"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	base := core.ErrEmbeddingBackend

	err := Classify(base, 503, errors.New("service unavailable"))
	assert.ErrorIs(t, err, core.ErrBackendUnreachable)
	assert.ErrorIs(t, err, base)

	err = Classify(base, 401, errors.New("unauthorized"))
	assert.NotErrorIs(t, err, core.ErrBackendUnreachable)
	assert.ErrorIs(t, err, base)

	err = Classify(base, 0, errors.New("dial tcp 127.0.0.1:11434: connect: connection refused"))
	assert.ErrorIs(t, err, core.ErrBackendUnreachable)

	err = Classify(base, 0, context.DeadlineExceeded)
	assert.ErrorIs(t, err, core.ErrBackendUnreachable)

	assert.NoError(t, Classify(base, 500, nil))
}
