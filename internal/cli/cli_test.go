package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"iuran-data/internal/config"
	"iuran-data/internal/domain"
	"iuran-data/internal/repository"
	"iuran-data/internal/service"
	"iuran-data/internal/sheet"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func memoryOpener(store *repository.MemoryRosterStore) Opener {
	return func(context.Context, *RootOptions) (*Deps, error) {
		return &Deps{
			Roster: service.NewRosterService(store, sheet.NewCodec(), nil, zap.NewNop()),
			Stats:  service.NewStatsService(store),
		}, nil
	}
}

func run(t *testing.T, store *repository.MemoryRosterStore, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand(memoryOpener(store))
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"import", "export", "template", "stats"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	out := cmd.PersistentFlags().Lookup("output")
	require.NotNil(t, out)
	assert.Equal(t, "text", out.DefValue)
}

func TestImportCommand_ReportsRejectedRows(t *testing.T) {
	store := repository.NewMemoryRosterStore()
	_, err := store.InsertRoster(context.Background(), domain.RosterFields{NIK: "222", FullName: "Ada", Role: domain.RoleResident})
	require.NoError(t, err)

	data, err := sheet.NewCodec().Encode([]string{"NIK", "Nama Lengkap"}, []sheet.Row{
		{"NIK": "'111", "Nama Lengkap": "Baru"},
		{"NIK": "'222", "Nama Lengkap": "Lama"},
	}, sheet.FormatCSV)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "warga.csv")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	out, _, err := run(t, store, "import", "--file", path, "--role", "security")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Berhasil: 1, Gagal: 1")
	assert.Contains(t, out, "Baris 3: NIK 222 sudah terdaftar")

	n, err := store.CountRoster(context.Background(), repository.CountFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestImportCommand_JSONOutput(t *testing.T) {
	store := repository.NewMemoryRosterStore()
	data, err := sheet.NewCodec().Encode([]string{"nik", "nama_lengkap"}, []sheet.Row{{"nik": "1", "nama_lengkap": "A"}}, sheet.FormatXLSX)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "warga.xlsx")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	out, _, err := run(t, store, "-o", "json", "import", "-f", path)
	require.NoError(t, err)

	var res service.ImportResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 1, res.SuccessCount)
	assert.Empty(t, res.Errors)
}

func TestImportCommand_NoFileIsCancelled(t *testing.T) {
	store := repository.NewMemoryRosterStore()

	_, errOut, err := run(t, store, "import")
	require.NoError(t, err)
	assert.Contains(t, errOut, "nothing imported")
}

func TestImportCommand_BadRole(t *testing.T) {
	_, _, err := run(t, repository.NewMemoryRosterStore(), "import", "--role", "admin", "--file", "x.csv")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestExportCommand_WritesFile(t *testing.T) {
	store := repository.NewMemoryRosterStore()
	_, err := store.InsertRoster(context.Background(), domain.RosterFields{NIK: "3201012501990001", FullName: "Ani", Role: domain.RoleResident})
	require.NoError(t, err)
	dir := t.TempDir()

	out, _, err := run(t, store, "export", "--format", "csv", "--out", dir)
	require.NoError(t, err)
	path := strings.TrimSpace(out)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "data_warga_"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "'3201012501990001,Ani,resident,-")
}

func TestExportCommand_EmptyRoster(t *testing.T) {
	_, _, err := run(t, repository.NewMemoryRosterStore(), "export", "--out", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, _, err = run(t, repository.NewMemoryRosterStore(), "export", "--format", "pdf")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTemplateCommand(t *testing.T) {
	dir := t.TempDir()
	out, _, err := run(t, repository.NewMemoryRosterStore(), "template", "--format", "csv", "--out", dir)
	require.NoError(t, err)

	content, err := os.ReadFile(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Contains(t, string(content), "NIK,Nama Lengkap")
}

func TestStatsCommand(t *testing.T) {
	store := repository.NewMemoryRosterStore()
	_, err := store.InsertRoster(context.Background(), domain.RosterFields{NIK: "1", FullName: "A", Role: domain.RoleSecurity})
	require.NoError(t, err)

	out, _, err := run(t, store, "--output", "json", "stats")
	require.NoError(t, err)
	assert.JSONEq(t, `{"resident_count":0,"security_count":1,"claimed_count":0}`, out)

	out, _, err = run(t, store, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Satpam:       1")

	_, _, err = run(t, store, "--output", "yaml", "stats")
	assert.Error(t, err)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "x", assert.AnError)))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
}

func TestImportCommand_PublishesAndInvalidatesStats(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{StoreBackend: config.BackendMemory}
	cfg.Redis.Addr = mr.Addr()
	cfg.Events.Stream = "iuran:roster:events"
	cfg.Events.StreamMaxLen = 100
	cfg.Stats.CacheEnabled = true
	cfg.Stats.CacheTTL = time.Minute

	store := repository.NewMemoryRosterStore()
	opener := func(ctx context.Context, _ *RootOptions) (*Deps, error) {
		return newDeps(ctx, cfg, store, zap.NewNop()), nil
	}
	// 导入前的旧统计
	require.NoError(t, mr.Set("iuran:dashboard:stats", `{"resident_count":0,"security_count":0,"claimed_count":0}`))

	data, err := sheet.NewCodec().Encode([]string{"NIK", "Nama Lengkap"}, []sheet.Row{
		{"NIK": "'3201010101900001", "Nama Lengkap": "Budi"},
	}, sheet.FormatCSV)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "warga.csv")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cmd := newRootCommand(opener)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"import", "--file", path})
	require.NoError(t, cmd.Execute())

	assert.False(t, mr.Exists("iuran:dashboard:stats"))

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	msgs, err := client.XRange(context.Background(), "iuran:roster:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "imported", msgs[0].Values["action"])

	cmd = newRootCommand(opener)
	out.Reset()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"-o", "json", "stats"})
	require.NoError(t, cmd.Execute())
	assert.JSONEq(t, `{"resident_count":1,"security_count":0,"claimed_count":0}`, out.String())
}
