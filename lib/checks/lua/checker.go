// Package lua runs spam checks written as Lua scripts. Each script in the plugins directory becomes
// a blocking check named "lua_<script name>". A script defines a global function
//
//	function check(text, params)
//	  return passed, score, details
//	end
//
// where passed is a boolean, score a number in 0..1 and details a string or a table.
// All scripts share a single Lua VM, calls are serialized.
package lua

import (
	"errors"
	"fmt"
	"log"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	lua "github.com/yuin/gopher-lua"

	"github.com/spamd/spamd/lib/checks"
	"github.com/spamd/spamd/lib/spamcheck"
)

// NamePrefix is prepended to a script name to make the check name
const NamePrefix = "lua_"

// Checker loads Lua scripts and makes check functions from them
type Checker struct {
	vm      *lua.LState
	scripts map[string]*lua.LFunction
	mu      sync.Mutex
}

// NewChecker makes a Checker with helper functions registered in its VM
func NewChecker() *Checker {
	c := &Checker{vm: lua.NewState(), scripts: make(map[string]*lua.LFunction)}
	c.registerHelpers()
	return c
}

// ScriptName returns the script name for a file path, i.e. the base name without extension
func ScriptName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// LoadScript loads a Lua script and registers its check function under the script name.
// A script already loaded under the same name is replaced only if the new one is valid.
func (c *Checker) LoadScript(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.vm.SetGlobal("check", lua.LNil) // don't pick up the function of a previously loaded script
	if err := c.vm.DoFile(path); err != nil {
		return fmt.Errorf("failed to load lua script: %w", err)
	}
	fn, ok := c.vm.GetGlobal("check").(*lua.LFunction)
	if !ok {
		return errors.New("script must define a 'check' function")
	}
	c.scripts[ScriptName(path)] = fn
	return nil
}

// ReloadScript loads the script again, the previous version stays active if loading fails
func (c *Checker) ReloadScript(path string) error {
	if err := c.LoadScript(path); err != nil {
		return fmt.Errorf("failed to reload %s: %w", path, err)
	}
	log.Printf("[INFO] lua script %s reloaded", ScriptName(path))
	return nil
}

// Unload removes a script, its check reports an error until the script is loaded again
func (c *Checker) Unload(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.scripts, name)
}

// LoadDirectory loads all *.lua scripts from the directory. Broken scripts are skipped and reported
// together in the returned error, valid ones are loaded anyway.
func (c *Checker) LoadDirectory(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.lua"))
	if err != nil {
		return fmt.Errorf("failed to list lua scripts in %s: %w", dir, err)
	}

	var errs *multierror.Error
	for _, file := range files {
		if err := c.LoadScript(file); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("script %s: %w", file, err))
			continue
		}
		log.Printf("[DEBUG] lua script %s loaded", file)
	}
	return errs.ErrorOrNil()
}

// Names returns names of loaded scripts, sorted
func (c *Checker) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := make([]string, 0, len(c.scripts))
	for name := range c.scripts {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}

// Check returns a check function for the script. The script is looked up on each call,
// so reloaded versions are picked up by the same function.
func (c *Checker) Check(name string) checks.Func {
	checkName := NamePrefix + name
	return func(text string, params spamcheck.Params) spamcheck.Result {
		res, err := c.call(name, checkName, text, params)
		if err != nil {
			log.Printf("[WARN] lua check %s failed: %v", checkName, err)
			return spamcheck.ErrorResult(checkName, err)
		}
		return res
	}
}

// Checks returns blocking checks for all loaded scripts, sorted by name
func (c *Checker) Checks() []checks.Check {
	names := c.Names()
	res := make([]checks.Check, 0, len(names))
	for _, name := range names {
		res = append(res, checks.NewBlocking(NamePrefix+name, c.Check(name)))
	}
	return res
}

func (c *Checker) call(name, checkName, text string, params spamcheck.Params) (spamcheck.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fn, ok := c.scripts[name]
	if !ok {
		return spamcheck.Result{}, fmt.Errorf("lua script %q not loaded", name)
	}

	top := c.vm.GetTop()
	defer c.vm.SetTop(top)
	err := c.vm.CallByParam(lua.P{Fn: fn, NRet: 3, Protect: true}, lua.LString(text), toLua(c.vm, map[string]any(params)))
	if err != nil {
		return spamcheck.Result{}, fmt.Errorf("error executing lua check: %w", err)
	}

	passed := lua.LVAsBool(c.vm.Get(-3))
	score := 0.0
	if n, ok := c.vm.Get(-2).(lua.LNumber); ok && !math.IsNaN(float64(n)) {
		score = math.Max(0, math.Min(float64(n), 1))
	}

	details := map[string]any{}
	switch v := c.vm.Get(-1).(type) {
	case *lua.LTable:
		if m, ok := fromLua(v).(map[string]any); ok {
			details = m
		} else {
			details["details"] = fromLua(v)
		}
	case *lua.LNilType:
	default:
		details["details"] = v.String()
	}
	return spamcheck.Result{Name: checkName, Passed: passed, Score: score, Details: details}, nil
}

// Close releases the Lua VM
func (c *Checker) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vm.Close()
}

// toLua converts a value decoded from json or yaml to a Lua value
func toLua(l *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case float64:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case []string:
		t := l.NewTable()
		for _, s := range val {
			t.Append(lua.LString(s))
		}
		return t
	case []any:
		t := l.NewTable()
		for _, e := range val {
			t.Append(toLua(l, e))
		}
		return t
	case spamcheck.Params:
		return toLua(l, map[string]any(val))
	case map[string]any:
		t := l.NewTable()
		for k, e := range val {
			t.RawSetString(k, toLua(l, e))
		}
		return t
	}
	return lua.LString(fmt.Sprint(v))
}

// fromLua converts a Lua value to a Go value. Tables with keys 1..n become slices, other tables maps.
func fromLua(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		return float64(val)
	case lua.LString:
		return string(val)
	case *lua.LTable:
		if n := val.MaxN(); n > 0 && n == countKeys(val) {
			res := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				res = append(res, fromLua(val.RawGetInt(i)))
			}
			return res
		}
		res := map[string]any{}
		val.ForEach(func(k, e lua.LValue) { res[k.String()] = fromLua(e) })
		return res
	}
	return nil
}

func countKeys(t *lua.LTable) int {
	n := 0
	t.ForEach(func(_, _ lua.LValue) { n++ })
	return n
}
