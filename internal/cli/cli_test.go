package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/crudflow/internal/runtime/jsoncodec"
)

const validConfig = `
uri_prefix: app
collections:
  - name: items
    create_schema: 'close({content: string})'
    update_schema: '{id: int, content?: string}'
  - name: logs
    capabilities: [list, delete]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crudflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, path := range [][]string{{"serve"}, {"config", "validate"}, {"procedures"}} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err)
		assert.Equal(t, path[len(path)-1], sub.Name())
	}

	flag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "c", flag.Shorthand)
	assert.Equal(t, "crudflow.yaml", flag.DefValue)
}

func TestRejectsUnknownFormat(t *testing.T) {
	_, err := execute(t, "procedures", "--format", "xml")
	assert.ErrorContains(t, err, "invalid format")

	_, err = execute(t, "procedures", "--log-level", "loud")
	assert.ErrorContains(t, err, "invalid log level")
}

func TestProceduresText(t *testing.T) {
	out, err := execute(t, "procedures", "--config", writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Contains(t, out, "procedure app.listitems")
	assert.Contains(t, out, "procedure app.deleteitems")
	assert.Contains(t, out, "topic     app.changeditems")
	assert.Contains(t, out, "procedure app.listlogs")
	assert.NotContains(t, out, "app.createlogs")
}

func TestProceduresJSON(t *testing.T) {
	out, err := execute(t, "procedures", "--format", "json", "-c", writeConfig(t, validConfig))
	require.NoError(t, err)

	var names []CollectionNames
	require.NoError(t, jsoncodec.Unmarshal([]byte(out), &names))
	require.Len(t, names, 2)
	assert.Equal(t, []string{"app.listitems", "app.createitems", "app.updateitems", "app.deleteitems"}, names[0].Procedures)
	assert.Equal(t, []string{"app.listlogs", "app.deletelogs"}, names[1].Procedures)
	assert.Equal(t, "app.deletedlogs", names[1].DeletedTopic)
}

func TestConfigValidateOK(t *testing.T) {
	path := writeConfig(t, validConfig)
	out, err := execute(t, "config", "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path+": ok")
}

func TestConfigValidateReportsEveryProblem(t *testing.T) {
	path := writeConfig(t, `
collections:
  - name: items
store: mongo
`)
	out, err := execute(t, "config", "validate", "--format", "json", "--config", path)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	var result ValidationResult
	require.NoError(t, jsoncodec.Unmarshal([]byte(out), &result))
	assert.False(t, result.Valid)
	// uri prefix, create schema, update schema and store
	assert.Len(t, result.Errors, 4)
}

func TestConfigValidateMissingFile(t *testing.T) {
	out, err := execute(t, "config", "validate", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, out, "1 problem(s)")
}
