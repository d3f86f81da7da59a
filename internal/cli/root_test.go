package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Sternrassler/portal-sync/internal/testutil"
	"github.com/Sternrassler/portal-sync/pkg/harvest"
	"github.com/Sternrassler/portal-sync/pkg/portal"
	"github.com/Sternrassler/portal-sync/pkg/syncer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "portal-sync", cmd.Use)
	assert.Contains(t, cmd.Long, "partner portal")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"harvest", "sync", "session"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	envFlag := cmd.PersistentFlags().Lookup("env-file")
	require.NotNil(t, envFlag)
	assert.Equal(t, ".env", envFlag.DefValue)

	for _, name := range []string{"log-level", "pretty", "metrics-addr"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestHarvestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	harvestCmd, _, err := cmd.Find([]string{"harvest"})
	require.NoError(t, err)

	for _, name := range []string{"broker", "token", "customers-template", "pending-template", "proposals-template"} {
		assert.NotNil(t, harvestCmd.Flags().Lookup(name), name)
	}
	outFlag := harvestCmd.Flags().Lookup("out")
	require.NotNil(t, outFlag)
	assert.Equal(t, "o", outFlag.Shorthand)
}

func TestSyncCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	syncCmd, _, err := cmd.Find([]string{"sync"})
	require.NoError(t, err)

	ensure := syncCmd.Flags().Lookup("ensure-schema")
	require.NotNil(t, ensure)
	assert.Equal(t, "false", ensure.DefValue)
	assert.NotNil(t, syncCmd.Flags().Lookup("dir"))
	assert.NotNil(t, syncCmd.Flags().Lookup("processed-dir"))
}

// runCLI executes the root command with a clean environment and no .env file.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, key := range []string{"PORTAL_TOKEN", "REDIS_ADDR", "METRICS_ADDR", "LOG_FILE"} {
		t.Setenv(key, "")
	}
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestHarvest_MissingToken(t *testing.T) {
	_, err := runCLI(t, "harvest", "--broker", "Acme")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "PORTAL_TOKEN")
}

func TestHarvest_NoTemplates(t *testing.T) {
	_, err := runCLI(t, "harvest", "--broker", "Acme", "--token", "abc")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no request template")
}

func TestHarvest_InvalidTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clientes.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := runCLI(t, "harvest", "--broker", "Acme", "--token", "abc", "--customers-template", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestHarvest_WritesFile(t *testing.T) {
	mock := testutil.NewMockPortal()
	defer mock.Close()
	mock.SetPagedListing("/relatorio/consulta/status/v2", "Pagina", 1, "listaPropostas", [][]any{
		{map[string]any{"nomeProponente": "Maria", "cpfProponente": "11122233344", "numeroProposta": "P1"}},
	})
	mock.SetJSON(portal.FirstInstallmentPath("11122233344", "P1"), map[string]any{
		"resultado": map[string]any{"valor": 99.9, "competencia": "05/2024"},
	})

	dir := t.TempDir()
	tpl := filepath.Join(dir, "propostas.json")
	require.NoError(t, os.WriteFile(tpl, []byte(`{"Pagina":1,"filtro":"todos"}`), 0o644))
	outDir := filepath.Join(dir, "out")

	t.Setenv("PORTAL_BASE_URL", mock.URL())
	t.Setenv("PORTAL_FAILURE_BACKOFF", "1ms")
	out, err := runCLI(t, "harvest", "--broker", "ACME CORRETORA", "--token", "abc",
		"--proposals-template", tpl, "--out", outDir)
	require.NoError(t, err)

	files, err := filepath.Glob(filepath.Join(outDir, "*"+harvest.FileSuffix))
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Contains(t, out, files[0])
	assert.Equal(t, "Acme Corretora", syncer.BrokerFromFileName(files[0]))

	batches, err := syncer.ReadBatches(files[0])
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].Data, 1)
}

func TestSession_RequiresRedis(t *testing.T) {
	_, err := runCLI(t, "session", "--broker", "Acme")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))

	wrapped := WrapExitError(ExitFailure, "sync incomplete", errors.New("boom"))
	assert.Equal(t, "sync incomplete: boom", wrapped.Error())
	assert.Equal(t, "boom", errors.Unwrap(wrapped).Error())
}

func TestWriteSyncReport(t *testing.T) {
	var out bytes.Buffer
	writeSyncReport(&out, []syncer.FileReport{
		{
			Path:   "/x/Extracao_ACME_2024-05-01_10-00-00_backup.json",
			Broker: "Acme",
			Moved:  true,
			Result: syncer.Result{Counts: map[syncer.Entity]syncer.Counts{
				syncer.EntityCustomers: {Inserted: 3, Skipped: 1},
			}},
		},
		{Path: "/x/Extracao_OUTRA_2024-05-01_10-00-00_backup.json", Broker: "Outra"},
	})

	s := out.String()
	assert.Contains(t, s, `Extracao_ACME_2024-05-01_10-00-00_backup.json (broker "Acme", moved)`)
	assert.Contains(t, s, "customers")
	assert.Contains(t, s, `(broker "Outra", left in place)`)
	assert.NotContains(t, s, "pension_products")
}
