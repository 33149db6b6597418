package lua

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spamd/spamd/lib/checks"
	"github.com/spamd/spamd/lib/spamcheck"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestChecker_LoadScript(t *testing.T) {
	tmpDir := t.TempDir()
	path := writeScript(t, tmpDir, "caps.lua", `
		function check(text, params)
			local limit = params.limit or 3
			local caps = count_regex(text, "[A-Z]")
			if caps > limit then
				return false, 1.0, "too many capitals"
			end
			return true, 0.0, "ok"
		end
	`)

	checker := NewChecker()
	defer checker.Close()
	require.NoError(t, checker.LoadScript(path))
	assert.Equal(t, []string{"caps"}, checker.Names())

	check := checker.Check("caps")
	res := check("BUY NOW", nil)
	assert.Equal(t, spamcheck.Result{Name: "lua_caps", Passed: false, Score: 1.0,
		Details: map[string]any{"details": "too many capitals"}}, res)

	res = check("BUY NOW", spamcheck.Params{"limit": 10})
	assert.True(t, res.Passed)
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, "ok", res.Details["details"])
}

func TestChecker_LoadInvalidScript(t *testing.T) {
	tmpDir := t.TempDir()
	checker := NewChecker()
	defer checker.Close()

	err := checker.LoadScript(writeScript(t, tmpDir, "invalid.lua", `this is not valid lua code`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load lua script")

	err = checker.LoadScript(writeScript(t, tmpDir, "missing.lua", `function other() return true end`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must define a 'check' function")
	assert.Empty(t, checker.Names())
}

func TestChecker_LoadScriptDoesNotReusePreviousCheck(t *testing.T) {
	tmpDir := t.TempDir()
	checker := NewChecker()
	defer checker.Close()

	require.NoError(t, checker.LoadScript(writeScript(t, tmpDir, "good.lua", `function check(t, p) return true, 0, "" end`)))
	err := checker.LoadScript(writeScript(t, tmpDir, "nocheck.lua", `local x = 1`))
	require.Error(t, err)
	assert.Equal(t, []string{"good"}, checker.Names())
}

func TestChecker_LoadDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	writeScript(t, tmpDir, "script1.lua", `function check(text, params) return true, 0.1, "script1 details" end`)
	writeScript(t, tmpDir, "script2.lua", `function check(text, params) return false, 0.9, "script2 details" end`)
	writeScript(t, tmpDir, "broken.lua", `function check(`)
	writeScript(t, tmpDir, "readme.txt", `not a script`)

	checker := NewChecker()
	defer checker.Close()
	err := checker.LoadDirectory(tmpDir)
	require.Error(t, err, "broken script reported")
	assert.Contains(t, err.Error(), "broken.lua")
	assert.Equal(t, []string{"script1", "script2"}, checker.Names())

	res1 := checker.Check("script1")("text", nil)
	assert.Equal(t, "lua_script1", res1.Name)
	assert.True(t, res1.Passed)
	assert.InDelta(t, 0.1, res1.Score, 0.0001)
	assert.Equal(t, "script1 details", res1.Details["details"])

	res2 := checker.Check("script2")("text", nil)
	assert.Equal(t, "lua_script2", res2.Name)
	assert.False(t, res2.Passed)
	assert.Equal(t, "script2 details", res2.Details["details"])

	cc := checker.Checks()
	require.Len(t, cc, 2)
	assert.Equal(t, "lua_script1", cc[0].Name)
	assert.Equal(t, checks.Blocking, cc[0].Kind)
	assert.Equal(t, "lua_script2", cc[1].Name)
}

func TestChecker_LoadEmptyDirectory(t *testing.T) {
	checker := NewChecker()
	defer checker.Close()
	require.NoError(t, checker.LoadDirectory(t.TempDir()))
	assert.Empty(t, checker.Checks())
}

func TestChecker_RuntimeError(t *testing.T) {
	tmpDir := t.TempDir()
	path := writeScript(t, tmpDir, "error.lua", `
		function check(text, params)
			local x = params.does_not_exist.something
			return true, 0, "never reached"
		end
	`)
	checker := NewChecker()
	defer checker.Close()
	require.NoError(t, checker.LoadScript(path))

	res := checker.Check("error")("text", nil)
	assert.Equal(t, "lua_error", res.Name)
	assert.False(t, res.Passed)
	assert.Equal(t, 0.0, res.Score)
	assert.Contains(t, res.Details["error"], "error executing lua check")

	// the vm stays usable after an error
	res = checker.Check("error")("text", spamcheck.Params{"does_not_exist": map[string]any{"something": 1}})
	assert.True(t, res.Passed)
}

func TestChecker_UnknownAndUnloaded(t *testing.T) {
	tmpDir := t.TempDir()
	checker := NewChecker()
	defer checker.Close()
	require.NoError(t, checker.LoadScript(writeScript(t, tmpDir, "s.lua", `function check(t, p) return true, 0, "" end`)))

	check := checker.Check("s")
	assert.True(t, check("text", nil).Passed)

	checker.Unload("s")
	res := check("text", nil)
	assert.False(t, res.Passed)
	assert.Equal(t, `lua script "s" not loaded`, res.Details["error"])
}

func TestChecker_ReturnValues(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		passed  bool
		score   float64
		details map[string]any
	}{
		{name: "score clamped high", script: `return false, 5, "x"`, passed: false, score: 1, details: map[string]any{"details": "x"}},
		{name: "score clamped low", script: `return true, -1, "x"`, passed: true, score: 0, details: map[string]any{"details": "x"}},
		{name: "non-number score", script: `return true, "abc", "x"`, passed: true, score: 0, details: map[string]any{"details": "x"}},
		{name: "nil details", script: `return true, 0.5`, passed: true, score: 0.5, details: map[string]any{}},
		{name: "table details", script: `return false, 0.5, {hits = 2, words = {"a", "b"}}`, passed: false, score: 0.5,
			details: map[string]any{"hits": 2.0, "words": []any{"a", "b"}}},
		{name: "array details", script: `return false, 0.5, {"a", "b"}`, passed: false, score: 0.5,
			details: map[string]any{"details": []any{"a", "b"}}},
		{name: "numeric details", script: `return false, 0.5, 42`, passed: false, score: 0.5, details: map[string]any{"details": "42"}},
		{name: "nothing returned", script: `return`, passed: false, score: 0, details: map[string]any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewChecker()
			defer checker.Close()
			path := writeScript(t, t.TempDir(), "s.lua", "function check(text, params) "+tt.script+" end")
			require.NoError(t, checker.LoadScript(path))
			res := checker.Check("s")("text", nil)
			assert.Equal(t, tt.passed, res.Passed)
			assert.InDelta(t, tt.score, res.Score, 0.0001)
			assert.Equal(t, tt.details, res.Details)
		})
	}
}

func TestChecker_Params(t *testing.T) {
	checker := NewChecker()
	defer checker.Close()
	path := writeScript(t, t.TempDir(), "p.lua", `
		function check(text, params)
			return params.flag, params.num, join(",", params.list) .. "|" .. params.nested.key
		end
	`)
	require.NoError(t, checker.LoadScript(path))
	res := checker.Check("p")("text", spamcheck.Params{"flag": true, "num": 0.25,
		"list": []any{"a", "b"}, "nested": map[string]any{"key": "v"}})
	assert.True(t, res.Passed)
	assert.Equal(t, 0.25, res.Score)
	assert.Equal(t, "a,b|v", res.Details["details"])
}

func TestChecker_Concurrent(t *testing.T) {
	checker := NewChecker()
	defer checker.Close()
	path := writeScript(t, t.TempDir(), "c.lua", `
		function check(text, params)
			return char_len(text) < 100, 0.1, to_upper(text)
		end
	`)
	require.NoError(t, checker.LoadScript(path))

	check := checker.Check("c")
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := check("hello", nil)
			assert.True(t, res.Passed)
			assert.Equal(t, "HELLO", res.Details["details"])
		}()
	}
	wg.Wait()
}
