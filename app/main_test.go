package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spamd/spamd/lib/checks"
	"github.com/spamd/spamd/lib/spamcheck"
)

func TestMakeSpamLogger(t *testing.T) {
	file, err := os.CreateTemp(os.TempDir(), "log")
	require.NoError(t, err)
	defer os.Remove(file.Name())

	logger := makeSpamLogger(file)
	req := spamcheck.Request{Text: "Test message\nblah blah  \n\n\n", Recipients: []string{"r1"},
		Checks: []string{"blacklist", "links"}}
	resp := spamcheck.Response{IsSpam: true, Score: 0.5, Results: []spamcheck.Result{
		{Name: "blacklist", Passed: false, Score: 1}, {Name: "links", Passed: true, Score: 0}}}
	logger.Save(req, resp)
	file.Close()

	// check that the message is saved to the log file
	file, err = os.Open(file.Name())
	require.NoError(t, err)
	defer file.Close()
	scanner := bufio.NewScanner(file)
	lines := 0
	for scanner.Scan() {
		line := scanner.Text()
		t.Log(line)
		lines++

		var logEntry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &logEntry))
		assert.Equal(t, "Test message blah blah", logEntry["text"])
		assert.Equal(t, []any{"r1"}, logEntry["recipients"])
		assert.InDelta(t, 0.5, logEntry["score"], 0.0001)
		assert.Equal(t, []any{"blacklist"}, logEntry["failed_checks"])
		assert.NotEmpty(t, logEntry["ts"])
	}
	assert.NoError(t, scanner.Err())
	assert.Equal(t, 1, lines)
}

func TestOptions_ExternalTimeout(t *testing.T) {
	t.Run("per-call timeout env in seconds doesn't break options", func(t *testing.T) {
		t.Setenv("EXTERNAL_SERVICE_TIMEOUT", "2.5")
		var opts options
		_, err := flags.ParseArgs(&opts, []string{})
		require.NoError(t, err)
		assert.Equal(t, 2*time.Second, opts.External.Timeout)
	})

	t.Run("default timeout from env", func(t *testing.T) {
		t.Setenv("EXTERNAL_SERVICE_DEFAULT_TIMEOUT", "3s")
		var opts options
		_, err := flags.ParseArgs(&opts, []string{})
		require.NoError(t, err)
		assert.Equal(t, 3*time.Second, opts.External.Timeout)
	})

	t.Run("default timeout from flag", func(t *testing.T) {
		var opts options
		_, err := flags.ParseArgs(&opts, []string{"--external.timeout=500ms"})
		require.NoError(t, err)
		assert.Equal(t, 500*time.Millisecond, opts.External.Timeout)
	})
}

func TestMakeSpamLogWriter(t *testing.T) {
	setupLog(true, "super-secret-token")
	t.Run("happy path", func(t *testing.T) {
		file, err := os.CreateTemp(os.TempDir(), "log")
		require.NoError(t, err)
		defer os.Remove(file.Name())

		var opts options
		opts.Logger.Enabled = true
		opts.Logger.FileName = file.Name()
		opts.Logger.MaxSize = "1M"
		opts.Logger.MaxBackups = 1

		writer, err := makeSpamLogWriter(opts)
		require.NoError(t, err)

		_, err = writer.Write([]byte("Test log entry\n"))
		assert.NoError(t, err)
		err = writer.Close()
		assert.NoError(t, err)

		content, err := os.ReadFile(file.Name())
		require.NoError(t, err)
		assert.Equal(t, "Test log entry\n", string(content))
	})

	t.Run("failed on wrong size", func(t *testing.T) {
		var opts options
		opts.Logger.Enabled = true
		opts.Logger.FileName = "/tmp"
		opts.Logger.MaxSize = "1f"
		opts.Logger.MaxBackups = 1
		writer, err := makeSpamLogWriter(opts)
		assert.Error(t, err)
		assert.Nil(t, writer)
	})

	t.Run("disabled", func(t *testing.T) {
		var opts options
		opts.Logger.Enabled = false
		opts.Logger.MaxSize = "10M"
		writer, err := makeSpamLogWriter(opts)
		assert.NoError(t, err)
		assert.IsType(t, nopWriteCloser{}, writer)
	})
}

func TestSizeParse(t *testing.T) {
	tests := []struct {
		inp     string
		want    uint64
		wantErr bool
	}{
		{inp: "1024", want: 1024},
		{inp: "1k", want: 1024},
		{inp: "1K", want: 1024},
		{inp: "10M", want: 10 * 1024 * 1024},
		{inp: "2g", want: 2 * 1024 * 1024 * 1024},
		{inp: "1T", want: 1024 * 1024 * 1024 * 1024},
		{inp: "", wantErr: true},
		{inp: "xM", wantErr: true},
		{inp: "12q", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.inp, func(t *testing.T) {
			res, err := sizeParse(tt.inp)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, res)
		})
	}
}

func TestLoadCheckDefaults(t *testing.T) {
	t.Run("not set", func(t *testing.T) {
		res, err := loadCheckDefaults("")
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	t.Run("file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "defaults.yml")
		require.NoError(t, os.WriteFile(file, []byte("emoji:\n  max_emoji: 5\n"), 0o600))
		res, err := loadCheckDefaults(file)
		require.NoError(t, err)
		assert.Equal(t, 5, res["emoji"].Int("max_emoji", 0))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := loadCheckDefaults(filepath.Join(t.TempDir(), "nope.yml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}

func TestMakeRegistry(t *testing.T) {
	t.Run("builtin and external", func(t *testing.T) {
		var opts options
		reg, luaChecker, err := makeRegistry(context.Background(), opts)
		require.NoError(t, err)
		assert.Nil(t, luaChecker)

		names := []string{}
		for _, c := range reg.List() {
			names = append(names, c.Name)
		}
		assert.Equal(t, []string{"blacklist", "email_addresses", "emoji", "external_service", "links",
			"message_length", "phone", "telegram_nick"}, names)

		c, ok := reg.Resolve(checks.ExternalName)
		require.True(t, ok)
		assert.Equal(t, checks.NonBlocking, c.Kind)
	})

	t.Run("llm checks with tokens", func(t *testing.T) {
		var opts options
		opts.OpenAI.Token = "openai-token"
		opts.OpenAI.APIBase = "http://localhost:1/v1"
		opts.Gemini.Token = "gemini-token"
		reg, _, err := makeRegistry(context.Background(), opts)
		require.NoError(t, err)

		for _, name := range []string{checks.OpenAIName, checks.GeminiName} {
			c, ok := reg.Resolve(name)
			require.True(t, ok, name)
			assert.Equal(t, checks.NonBlocking, c.Kind, name)
		}
	})

	t.Run("lua plugins", func(t *testing.T) {
		dir := t.TempDir()
		script := `function check(text, params)
			if string.find(text, "buy") then return false, 0.9, "buy found" end
			return true, 0, ""
		end`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "buy.lua"), []byte(script), 0o600))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.lua"), []byte("function check("), 0o600))

		var opts options
		opts.LuaPlugins.Enabled = true
		opts.LuaPlugins.Dir = dir
		reg, luaChecker, err := makeRegistry(context.Background(), opts)
		require.NoError(t, err)
		require.NotNil(t, luaChecker)
		defer luaChecker.Close()

		_, ok := reg.Resolve("lua_broken")
		assert.False(t, ok)
		c, ok := reg.Resolve("lua_buy")
		require.True(t, ok)
		assert.Equal(t, checks.Blocking, c.Kind)
		res := c.Run(context.Background(), "buy now", nil)
		assert.False(t, res.Passed)
		assert.InDelta(t, 0.9, res.Score, 0.0001)
	})

	t.Run("lua plugins dir missing", func(t *testing.T) {
		var opts options
		opts.LuaPlugins.Enabled = true
		opts.LuaPlugins.Dir = filepath.Join(t.TempDir(), "nope")
		_, _, err := makeRegistry(context.Background(), opts)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}

type errCloser struct{ err error }

func (e errCloser) Close() error { return e.err }

func TestCloseAll(t *testing.T) {
	assert.NoError(t, closeAll())
	assert.NoError(t, closeAll(errCloser{}, nopWriteCloser{io.Discard}))

	err := closeAll(errCloser{err: errors.New("err1")}, errCloser{}, errCloser{err: errors.New("err2")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "err1")
	assert.Contains(t, err.Error(), "err2")
}

func TestExecute(t *testing.T) {
	dir := t.TempDir()
	defaultsFile := filepath.Join(dir, "defaults.yml")
	require.NoError(t, os.WriteFile(defaultsFile, []byte("message_length:\n  min_length: 2\n"), 0o600))

	var opts options
	opts.Listen = "localhost:19877"
	opts.AuthPasswd = "secret"
	opts.RequestTimeout = 5 * time.Second
	opts.RateLimit = 100
	opts.CheckDefaults = defaultsFile
	opts.Storage.Conn = filepath.Join(dir, "verdicts.db")
	opts.Metrics = true
	opts.External.Timeout = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- execute(ctx, opts) }()

	send := func(method, path, body string) (*http.Response, error) {
		req, err := http.NewRequest(method, "http://localhost:19877"+path, strings.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth("spamd", "secret")
		return http.DefaultClient.Do(req)
	}

	require.Eventually(t, func() bool {
		resp, err := send(http.MethodGet, "/health", "")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	resp, err := send(http.MethodPost, "/api/check", `{"text":"hey","recipients":["r1"],
		"checks":["message_length","blacklist","bogus"]}`)
	require.NoError(t, err)
	var res spamcheck.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, res.IsSpam, "3 chars pass min_length 2 from defaults")
	require.Len(t, res.Results, 2)

	resp, err = send(http.MethodGet, "/api/verdicts?limit=10", "")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"text":"hey"`)

	resp, err = send(http.MethodGet, "/metrics", "")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), fmt.Sprintf("spamd_unknown_checks_total %d", 1))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("execute didn't stop")
	}
}

func TestExecute_MemoryStorage(t *testing.T) {
	var opts options
	opts.Listen = "localhost:19878"
	opts.RequestTimeout = 5 * time.Second
	opts.RateLimit = 100
	opts.Storage.Memory = 5
	opts.External.Timeout = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- execute(ctx, opts) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://localhost:19878/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	resp, err := http.Post("http://localhost:19878/api/check", "application/json",
		strings.NewReader(`{"text":"get free stuff","checks":["blacklist"]}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://localhost:19878/api/verdicts")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"text":"get free stuff"`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("execute didn't stop")
	}
}
