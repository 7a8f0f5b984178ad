package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

// writeConfig writes a minimal rules-only config file.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agrinlu.yaml")
	body := "model:\n  backend: none\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// run executes the root command with args and returns stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", writeConfig(t, "")}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNewRootCommand_Structure(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "agrinlu", cmd.Use)
	assert.NotEmpty(t, cmd.Short)

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"extract", "analyze", "labels", "rules", "migrate", "audit", "model", "cache", "version"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestNewRootCommand_GlobalFlags(t *testing.T) {
	pf := NewRootCommand().PersistentFlags()

	tests := []struct {
		name, shorthand, def string
	}{
		{"config", "c", ""},
		{"output", "o", OutputText},
		{"verbose", "v", "false"},
		{"no-color", "", "false"},
		{"log-level", "", "warn"},
		{"timeout", "", "1m0s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := pf.Lookup(tt.name)
			require.NotNil(t, f)
			assert.Equal(t, tt.shorthand, f.Shorthand)
			assert.Equal(t, tt.def, f.DefValue)
		})
	}
}

func TestPersistentPreRun_InvalidOutput(t *testing.T) {
	_, err := run(t, "", "-o", "yaml", "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid output format")
}

func TestPersistentPreRun_MissingConfigFile(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml"), "version"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config initialization failed")
}

func TestGetCLIContext_Missing(t *testing.T) {
	cmd := &cobra.Command{}
	_, err := GetCLIContext(cmd)
	assert.Error(t, err)

	cmd.SetContext(context.Background())
	_, err = GetCLIContext(cmd)
	assert.Error(t, err)
}

func TestVersionCmd(t *testing.T) {
	orig := Version
	Version = "1.2.3"
	defer func() { Version = orig }()

	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "agrinlu 1.2.3")

	out, err = run(t, "", "-o", "json", "version")
	require.NoError(t, err)
	var v versionOutput
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "1.2.3", v.Version)
	assert.NotEmpty(t, v.GoVersion)
}

func TestPrintResult_WithoutContextFallsBackToJSON(t *testing.T) {
	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	require.NoError(t, PrintResult(cmd, map[string]int{"a": 1}))
	assert.JSONEq(t, `{"a":1}`, buf.String())
}

func TestPrintTable_FallsBackToText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printTable(&buf, "plain"))
	assert.Equal(t, "plain\n", buf.String())
}

func TestFormatTable(t *testing.T) {
	assert.Empty(t, FormatTable(nil, nil))

	out := FormatTable([]string{"Name", "Count"}, [][]string{{"offset", "3"}, {"short"}})
	upper := strings.ToUpper(out)
	assert.Contains(t, upper, "NAME")
	assert.Contains(t, upper, "COUNT")
	assert.Contains(t, out, "offset")
	assert.Contains(t, out, "short")
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "lúa", truncateString("lúa", 5))
	assert.Equal(t, "đạo...", truncateString("đạo ôn lá", 6))
	assert.Equal(t, "ab", truncateString("abcdef", 2))
}

func TestPrintError(t *testing.T) {
	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetErr(&buf)
	PrintError(cmd, nil)
	assert.Empty(t, buf.String())

	PrintError(cmd, assert.AnError)
	assert.Contains(t, buf.String(), "Error:")
	assert.Contains(t, buf.String(), assert.AnError.Error())
}

//Personal.AI order the ending
