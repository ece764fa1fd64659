package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetInitialSchema(t *testing.T) {
	schema, err := GetInitialSchema()
	require.NoError(t, err)

	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS kv_store")
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS dead_letters")
}

func TestAll_IncludesInitialSchema(t *testing.T) {
	all, err := All()
	require.NoError(t, err)

	initial, err := GetInitialSchema()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(all, initial))
}
