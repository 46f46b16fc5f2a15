// Package builtins names the hash standard functions the compiler knows
// about. The parser and checker use this set to resolve bare words to
// function applications ("function wins" over an external program of the
// same name); the generator emits shell bodies for the ones a script uses.
package builtins

// Functions maps each builtin function name to its arity before the piped
// argument. A value of -1 means variadic.
var Functions = map[string]int{
	"print":   -1,
	"lines":   1,
	"words":   1,
	"join":    2,
	"split":   2,
	"len":     1,
	"reverse": 1,
	"filter":  2,
	"map":     2,
	"nth":     2,
	"push":    2,
	"keys":    1,
	"values":  1,
	"get":     2,
	"has":     2,
	"read":    1,
	"exists":  1,
}

// Variables names the reserved variables every script scope starts with.
// "status" holds the exit code of the immediately preceding command.
var Variables = map[string]bool{
	"status": true,
	"true":   true,
	"false":  true,
}

// IsFunction reports whether name is a builtin function.
func IsFunction(name string) bool {
	_, ok := Functions[name]
	return ok
}

// IsVariable reports whether name is a reserved variable.
func IsVariable(name string) bool {
	return Variables[name]
}
