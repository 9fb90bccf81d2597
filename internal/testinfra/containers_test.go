package testinfra

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostParams(t *testing.T) {
	p, err := hostParams("localhost:49153")
	require.NoError(t, err)
	assert.Equal(t, "localhost", p.Host)
	assert.Equal(t, 49153, p.Port)
	assert.Positive(t, p.ConnectTimeout)

	p, err = hostParams("[::1]:5432")
	require.NoError(t, err)
	assert.Equal(t, "::1", p.Host)
	assert.Equal(t, 5432, p.Port)
}

func TestHostParams_Invalid(t *testing.T) {
	_, err := hostParams("no-port")
	assert.Error(t, err)

	_, err = hostParams("localhost:http")
	assert.Error(t, err)
}
