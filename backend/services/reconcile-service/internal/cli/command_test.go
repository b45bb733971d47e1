package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	libdb "expolis/backend/libs/db"
	"expolis/backend/services/reconcile-service/internal/app"
	"expolis/backend/services/reconcile-service/internal/config"
	"expolis/backend/services/reconcile-service/internal/parser"
)

const replicaSchema = `
CREATE TABLE node_sensors (ID INTEGER PRIMARY KEY, mqtt_topic_number INTEGER NOT NULL);
CREATE TABLE measurement_properties (
	nodeID INTEGER NOT NULL,
	when_ TEXT NOT NULL,
	latitude REAL NOT NULL,
	longitude REAL NOT NULL
);
INSERT INTO node_sensors (ID, mqtt_topic_number) VALUES (1, 12);
INSERT INTO measurement_properties VALUES
	(1, '2021-03-04 10:15:30.000000', 41.15, -8.61),
	(1, '2021-03-04 10:15:40.000000', 41.16, -8.62);
`

func newReplica(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "replica.db")
	db, err := libdb.NewSQLiteDB(path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(replicaSchema)
	require.NoError(t, err)
	return path
}

func writeExport(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node12.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func newTestCommand(t *testing.T, replica string) (*Command, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	cmd := &Command{
		Stdout: &out,
		Logger: zap.NewNop(),
		NewApp: app.New,
		LoadConfig: func(string) (*config.Config, error) {
			cfg := &config.Config{}
			cfg.Database.Driver = libdb.DriverSQLite
			cfg.Database.DSN = replica
			cfg.TimeFormats = parser.DefaultFormats()
			return cfg, nil
		},
	}
	return cmd, &out
}

func TestExecuteAgainstReplica(t *testing.T) {
	cmd, out := newTestCommand(t, newReplica(t))
	csv := writeExport(t, "ExpoLIS\nn when lat lon\n"+
		"1 2021-03-04T10:15:30 41,15 -8,61\n"+
		"2 2021-03-04T10:15:40 41.16 -8.62\n")

	require.NoError(t, cmd.Execute(context.Background(), []string{"12", csv}))
	assert.Equal(t, "All data in CSV file "+csv+" is in the database.\n", out.String())
}

func TestExecuteMissingRowsStillExitsZero(t *testing.T) {
	cmd, out := newTestCommand(t, newReplica(t))
	csv := writeExport(t, "ExpoLIS\nn when lat lon\n"+
		"1 2021-03-04T10:15:30 41,15 -8,61\n"+
		"2 2021-03-04T10:15:41 41.16 -8.62\n")

	err := cmd.Execute(context.Background(), []string{"13", csv, "--report"})
	require.NoError(t, err)
	assert.Equal(t, ExitOK, ExitCode(err))
	assert.Contains(t, out.String(), "All rows from CSV file are not in the database!")
	assert.Contains(t, out.String(), "missing: line 3 ")
}

func TestExecuteFileChecks(t *testing.T) {
	cmd, out := newTestCommand(t, newReplica(t))
	dir := t.TempDir()

	absent := filepath.Join(dir, "absent.csv")
	err := cmd.Execute(context.Background(), []string{"12", absent})
	assert.Equal(t, ExitFileMissing, ExitCode(err))
	assert.True(t, Printed(err))
	assert.Equal(t, "File "+absent+" does not exist!\n", out.String())

	out.Reset()
	err = cmd.Execute(context.Background(), []string{"12", dir})
	assert.Equal(t, ExitNotRegular, ExitCode(err))
	assert.True(t, Printed(err))
	assert.Equal(t, "File "+dir+" is not a regular file!\n", out.String())
}

func TestExecuteInterrupted(t *testing.T) {
	cmd, out := newTestCommand(t, newReplica(t))
	csv := writeExport(t, "h\nh\n1 2021-03-04T10:15:30 41.15 -8.61\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cmd.Execute(ctx, []string{"12", csv})
	assert.Equal(t, ExitInterrupted, ExitCode(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, Printed(err))
	assert.Empty(t, out.String())
}

func TestExitCodeForPlainErrors(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitUsage, ExitCode(errors.New("unknown flag")))
	assert.False(t, Printed(errors.New("unknown flag")))
}

func TestExecuteOpenFailure(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read any file")
	}
	cmd, out := newTestCommand(t, newReplica(t))
	csv := writeExport(t, "h\nh\n")
	require.NoError(t, os.Chmod(csv, 0o000))

	err := cmd.Execute(context.Background(), []string{"12", csv})
	assert.Equal(t, ExitOpenFailed, ExitCode(err))
	assert.Equal(t, "Could not open file "+csv+"!.\n", out.String())
}

func TestExecuteMalformedRowAborts(t *testing.T) {
	cmd, out := newTestCommand(t, newReplica(t))
	csv := writeExport(t, "h\nh\n1 2021-03-04T10:15 41.15 -8.61\n")

	err := cmd.Execute(context.Background(), []string{"12", csv})
	assert.Equal(t, ExitMalformed, ExitCode(err))
	assert.ErrorIs(t, err, parser.ErrMalformedLine)
	assert.Empty(t, out.String())
}

func TestExecuteSkipMalformedFlag(t *testing.T) {
	cmd, out := newTestCommand(t, newReplica(t))
	csv := writeExport(t, "h\nh\n1 2021-03-04T10:15 41.15 -8.61\n2 2021-03-04T10:15:30 41.15 -8.61\n")

	require.NoError(t, cmd.Execute(context.Background(), []string{"12", csv, "--skip-malformed"}))
	assert.Equal(t, "All data in CSV file "+csv+" is in the database.\n", out.String())
}

func TestExecuteStoreFailure(t *testing.T) {
	emptyDB := filepath.Join(t.TempDir(), "empty.db")
	cmd, _ := newTestCommand(t, emptyDB)
	csv := writeExport(t, "h\nh\n1 2021-03-04T10:15:30 41.15 -8.61\n")

	err := cmd.Execute(context.Background(), []string{"12", csv})
	assert.Equal(t, ExitStore, ExitCode(err))
}

func TestExecuteSetupFailure(t *testing.T) {
	cmd, _ := newTestCommand(t, newReplica(t))
	cmd.LoadConfig = func(string) (*config.Config, error) {
		return nil, errors.New("config: database dsn required")
	}
	csv := writeExport(t, "h\nh\n")

	err := cmd.Execute(context.Background(), []string{"12", csv})
	assert.Equal(t, ExitSetup, ExitCode(err))
}

func TestExecuteUsageErrors(t *testing.T) {
	cmd, _ := newTestCommand(t, newReplica(t))

	assert.Equal(t, ExitUsage, ExitCode(cmd.Execute(context.Background(), []string{"12"})))
	assert.Equal(t, ExitUsage, ExitCode(cmd.Execute(context.Background(), []string{"twelve", "x.csv"})))
}
