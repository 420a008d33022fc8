package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shineum/skillkit/internal/cli/clitest"
)

func TestQuery_NoConnectionConfigured(t *testing.T) {
	res := clitest.Run(t, Program(), clitest.Config(t), clitest.Options{}, "query", "SELECT 1")
	assert.Equal(t, 1, res.Code)
	assert.Contains(t, res.Stderr, "DATABASE_URL")
	assert.Empty(t, res.Stdout)
}

func TestQuery_MissingSQL(t *testing.T) {
	res := clitest.Run(t, Program(), clitest.Config(t), clitest.Options{}, "query")
	assert.Equal(t, 1, res.Code)
	assert.Contains(t, res.Stderr, "Usage: postgres query")
}
