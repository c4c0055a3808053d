package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindd/internal/app"
	"remindd/internal/testutil"
)

// writeConfig writes a quiet YAML config backed by a file store in a temp dir.
func writeConfig(t *testing.T) (cfgPath, eventsPath string) {
	t.Helper()
	dir := t.TempDir()
	eventsPath = filepath.Join(dir, "events.json")
	cfgPath = filepath.Join(dir, "remindd.yaml")
	body := fmt.Sprintf(`logging: { level: error, console: false }
store: { driver: file, path: %q }
scheduler: { timezone: UTC }
notifier: { enabled: false, console: false }
`, eventsPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))
	return cfgPath, eventsPath
}

type sdRecorder struct {
	mu     sync.Mutex
	states []string
}

func (r *sdRecorder) notify(state string) (bool, error) {
	r.mu.Lock()
	r.states = append(r.states, state)
	r.mu.Unlock()
	return false, nil
}

func (r *sdRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.states...)
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

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "remindd", cmd.Use)

	for _, name := range []string{"run", "triggers", "add", "delete"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	cfgFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, cfgFlag)
	assert.Equal(t, "c", cfgFlag.Shorthand)
	assert.Equal(t, "", cfgFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	cfg, _ := writeConfig(t)
	_, err := execute(t, "triggers", "--config", cfg, "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestAddThenDelete(t *testing.T) {
	cfg, events := writeConfig(t)

	out, err := execute(t, "add", "abc", "Team sync", "2099-05-01T10:00:00", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, `added abc "Team sync" at 2099-05-01T10:00:00Z`)

	raw, err := os.ReadFile(events)
	require.NoError(t, err)
	var stored map[string]map[string]string
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, map[string]string{"name": "Team sync", "date": "2099-05-01T10:00:00"}, stored["abc"])

	out, err = execute(t, "delete", "abc", "--config", cfg)
	require.NoError(t, err)
	assert.Equal(t, "deleted abc\n", out)

	_, err = execute(t, "delete", "abc", "--config", cfg)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "not found")
}

func TestAddRejectsBadDate(t *testing.T) {
	cfg, events := writeConfig(t)

	_, err := execute(t, "add", "abc", "Team sync", "next tuesday", "--config", cfg)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, statErr := os.Stat(events)
	assert.True(t, os.IsNotExist(statErr), "nothing should be written")
}

func TestAddArgs(t *testing.T) {
	cfg, _ := writeConfig(t)
	_, err := execute(t, "add", "abc", "--config", cfg)
	require.Error(t, err)
}

func TestMissingConfig(t *testing.T) {
	_, err := execute(t, "triggers", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTriggersJSON(t *testing.T) {
	cfg, events := writeConfig(t)
	require.NoError(t, os.WriteFile(events, []byte(`{
  "future": {"name": "Launch", "date": "2099-01-02T12:00:00"},
  "past":   {"name": "Old",    "date": "2001-01-01T00:00:00"},
  "broken": {"name": "Bad",    "date": "soon"}
}`), 0o644))

	out, err := execute(t, "triggers", "--config", cfg, "--format", "json")
	require.NoError(t, err)

	var res TriggersResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 3, res.Events)
	assert.Equal(t, 2, res.Dropped)
	require.Len(t, res.Pending, 2)
	assert.Equal(t, "future_24-hour", res.Pending[0].ID)
	assert.Equal(t, "24-hour", res.Pending[0].Tag)
	assert.True(t, res.Pending[0].FireAt.Equal(time.Date(2099, 1, 1, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, "future_1-hour", res.Pending[1].ID)
	assert.True(t, res.Pending[1].FireAt.Equal(time.Date(2099, 1, 2, 11, 0, 0, 0, time.UTC)))
	assert.Contains(t, res.Failures, "broken")
}

func TestTriggersAtFixedTime(t *testing.T) {
	cfg, events := writeConfig(t)
	require.NoError(t, os.WriteFile(events, []byte(`{"e1": {"name": "Demo", "date": "2030-03-10T10:00:00Z"}}`), 0o644))

	// 30 minutes before the event both reminders are already past.
	clock := testutil.NewFakeClock(time.Date(2030, 3, 10, 9, 30, 0, 0, time.UTC))
	opts := &TriggersOptions{RootOptions: &RootOptions{Config: cfg, Format: "text"}, Now: clock.Now}
	res, err := listTriggers(context.Background(), opts)
	require.NoError(t, err)
	assert.Empty(t, res.Pending)
	assert.Equal(t, 2, res.Dropped)

	// 25 hours before: both pending.
	clock.Set(time.Date(2030, 3, 9, 9, 0, 0, 0, time.UTC))
	res, err = listTriggers(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, res.Pending, 2)

	var buf bytes.Buffer
	require.NoError(t, writeTriggersText(&buf, res))
	assert.Contains(t, buf.String(), "e1_24-hour")
	assert.Contains(t, buf.String(), "2030-03-09T10:00:00Z")
	assert.Contains(t, buf.String(), "1 events, 2 pending, 0 dropped")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	cfg, events := writeConfig(t)
	require.NoError(t, os.WriteFile(events, []byte(`{"e1": {"name": "Demo", "date": "2099-03-10T10:00:00Z"}}`), 0o644))

	sd := &sdRecorder{}
	opts := &RunOptions{
		RootOptions: &RootOptions{Config: cfg, Format: "text"},
		AppOptions:  []app.Option{app.WithSinks(), app.WithSdNotify(sd.notify)},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runDaemon(ctx, opts) }()

	require.Eventually(t, func() bool { return len(sd.all()) > 0 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	assert.Equal(t, []string{"READY=1", "STOPPING=1"}, sd.all())
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(fmt.Errorf("plain")))
	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "bad", fmt.Errorf("inner")))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
	assert.Equal(t, "bad: inner", WrapExitError(ExitCommandError, "bad", fmt.Errorf("inner")).Error())
}
