package lua

import (
	"regexp"
	"strings"
	"unicode/utf8"

	lua "github.com/yuin/gopher-lua"
)

// helpers are Go functions exposed to scripts as globals
var helpers = map[string]lua.LGFunction{
	"count_substring": countSubstring,
	"count_regex":     countRegex,
	"match_regex":     matchRegex,
	"contains_any":    containsAny,
	"to_lower":        toLower,
	"to_upper":        toUpper,
	"trim":            trim,
	"split":           split,
	"join":            join,
	"starts_with":     startsWith,
	"ends_with":       endsWith,
	"char_len":        charLen,
}

func (c *Checker) registerHelpers() {
	for name, fn := range helpers {
		c.vm.SetGlobal(name, c.vm.NewFunction(fn))
	}
}

// countSubstring(str, substr) returns the number of non-overlapping occurrences
func countSubstring(l *lua.LState) int {
	l.Push(lua.LNumber(strings.Count(l.CheckString(1), l.CheckString(2))))
	return 1
}

// countRegex(str, pattern) returns the number of matches, or nil and an error message for a bad pattern
func countRegex(l *lua.LState) int {
	re, err := regexp.Compile(l.CheckString(2))
	if err != nil {
		l.Push(lua.LNil)
		l.Push(lua.LString("invalid pattern: " + err.Error()))
		return 2
	}
	l.Push(lua.LNumber(len(re.FindAllStringIndex(l.CheckString(1), -1))))
	return 1
}

// matchRegex(str, pattern) returns true if str matches, or false and an error message for a bad pattern
func matchRegex(l *lua.LState) int {
	text := l.CheckString(1)
	re, err := regexp.Compile(l.CheckString(2))
	if err != nil {
		l.Push(lua.LFalse)
		l.Push(lua.LString("invalid pattern: " + err.Error()))
		return 2
	}
	l.Push(lua.LBool(re.MatchString(text)))
	return 1
}

// containsAny(str, {items}) or containsAny(str, item1, item2, ...) returns true and the first found item
func containsAny(l *lua.LState) int {
	str := l.CheckString(1)
	for _, item := range stringArgs(l, 2) {
		if strings.Contains(str, item) {
			l.Push(lua.LTrue)
			l.Push(lua.LString(item))
			return 2
		}
	}
	l.Push(lua.LFalse)
	return 1
}

func toLower(l *lua.LState) int {
	l.Push(lua.LString(strings.ToLower(l.CheckString(1))))
	return 1
}

func toUpper(l *lua.LState) int {
	l.Push(lua.LString(strings.ToUpper(l.CheckString(1))))
	return 1
}

func trim(l *lua.LState) int {
	l.Push(lua.LString(strings.TrimSpace(l.CheckString(1))))
	return 1
}

// split(str, sep) returns an array of parts
func split(l *lua.LState) int {
	res := l.NewTable()
	for _, part := range strings.Split(l.CheckString(1), l.CheckString(2)) {
		res.Append(lua.LString(part))
	}
	l.Push(res)
	return 1
}

// join(sep, {items}) or join(sep, item1, item2, ...)
func join(l *lua.LState) int {
	sep := l.CheckString(1)
	l.Push(lua.LString(strings.Join(stringArgs(l, 2), sep)))
	return 1
}

func startsWith(l *lua.LState) int {
	l.Push(lua.LBool(strings.HasPrefix(l.CheckString(1), l.CheckString(2))))
	return 1
}

func endsWith(l *lua.LState) int {
	l.Push(lua.LBool(strings.HasSuffix(l.CheckString(1), l.CheckString(2))))
	return 1
}

// charLen(str) returns the length in characters, # operator counts bytes
func charLen(l *lua.LState) int {
	l.Push(lua.LNumber(utf8.RuneCountInString(l.CheckString(1))))
	return 1
}

// stringArgs collects string arguments starting from position from, either a table or a list of values.
// Non-string table elements are skipped.
func stringArgs(l *lua.LState, from int) []string {
	var res []string
	if l.GetTop() >= from && l.Get(from).Type() == lua.LTTable {
		l.ToTable(from).ForEach(func(_, v lua.LValue) {
			if v.Type() == lua.LTString {
				res = append(res, v.String())
			}
		})
		return res
	}
	for i := from; i <= l.GetTop(); i++ {
		res = append(res, l.CheckString(i))
	}
	return res
}
