package daemon

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileStatusSchema(t *testing.T) *jsonschema.Schema {
	t.Helper()

	schemaData, err := os.ReadFile("testdata/status.schema.json")
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	require.NoError(t, compiler.AddResource("status.schema.json", bytes.NewReader(schemaData)))
	schema, err := compiler.Compile("status.schema.json")
	require.NoError(t, err)
	return schema
}

func TestStatusJSONMatchesSchema(t *testing.T) {
	schema := compileStatusSchema(t)
	clock := newFakeClock()
	s := NewState(Options{Clock: clock.Now})

	sessionID, _, err := s.StartSession(3)
	require.NoError(t, err)
	require.True(t, s.CompleteSession(sessionID, "validated"))
	s.SetFocusedEngine(3, true)

	raw, err := s.StatusJSON()
	require.NoError(t, err)

	var doc interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	assert.NoError(t, schema.Validate(doc))
}

func TestStatusJSONEmptyStateMatchesSchema(t *testing.T) {
	schema := compileStatusSchema(t)
	s := NewState(Options{})

	raw, err := s.StatusJSON()
	require.NoError(t, err)

	var doc interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	assert.NoError(t, schema.Validate(doc))
}

func TestSnapshotFields(t *testing.T) {
	clock := newFakeClock()
	s := NewState(Options{Clock: clock.Now})

	_, _, err := s.StartSession(5)
	require.NoError(t, err)
	s.SetFocusedEngine(5, true)
	s.SetLanguage("en")

	snap := s.Snapshot()
	assert.True(t, snap.Recording)
	assert.Equal(t, "en", snap.Language)
	assert.Equal(t, uint64(5), snap.FocusedEngineID)
	assert.Equal(t, 1, snap.SessionCount)
	assert.NotEmpty(t, snap.PendingCommits)
}
