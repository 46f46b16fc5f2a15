package codegen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hash-lang/hash/core/ast"
)

// typePattern returns the validation regex for a declared argument type;
// empty means any text passes.
func typePattern(typ string) string {
	switch typ {
	case "int":
		return `^-?[0-9]+$`
	case "float":
		return `^-?[0-9]+([.][0-9]+)?$`
	}
	return ""
}

// genArgPreamble emits the usage text, the option/positional parser, and
// the type validation for the script's declared arguments. -h and --help
// print usage and exit zero; any validation failure prints usage to stderr
// and exits non-zero.
func (g *generator) genArgPreamble(out *strings.Builder, args []*ast.ArgSpec) {
	saved := g.cur
	g.cur = out
	defer func() { g.cur = saved }()

	var positionals, named []*ast.ArgSpec
	for _, a := range args {
		if a.Index > 0 {
			positionals = append(positionals, a)
		} else {
			named = append(named, a)
		}
	}
	sort.Slice(positionals, func(i, j int) bool { return positionals[i].Index < positionals[j].Index })

	g.genUsage(positionals, named)

	// Defaults first so omitted arguments land on them.
	for _, a := range named {
		switch {
		case a.Type == "bool":
			g.line("%s=false", a.Name)
		case a.Default != nil:
			g.assign(a.Name, g.genExpr(a.Default))
		default:
			g.line("%s=", a.Name)
		}
	}

	g.line("__HASH_POS=()")
	g.line(`while (($# > 0)); do`)
	g.indent++
	g.line(`case $1 in`)
	g.line(`-h | --help)`)
	g.line(`  __hash_usage`)
	g.line(`  exit 0`)
	g.line(`  ;;`)
	for _, a := range named {
		if a.Type == "bool" {
			g.line(`--%s)`, a.Name)
			g.line(`  %s=true`, a.Name)
			g.line(`  ;;`)
		} else {
			g.line(`--%s)`, a.Name)
			g.line(`  shift`)
			g.line(`  %s=${1-}`, a.Name)
			g.line(`  ;;`)
		}
	}
	g.line(`--*)`)
	g.line(`  printf 'unknown option: %%s\n' "$1" >&2`)
	g.line(`  __hash_usage >&2`)
	g.line(`  exit 1`)
	g.line(`  ;;`)
	g.line(`*)`)
	g.line(`  __HASH_POS+=("$1")`)
	g.line(`  ;;`)
	g.line(`esac`)
	g.line(`shift`)
	g.indent--
	g.line(`done`)

	for _, a := range positionals {
		idx := a.Index - 1
		if a.Default != nil {
			def := g.genExpr(a.Default)
			g.line(`%s=${__HASH_POS[%d]-"%s"}`, a.Name, idx, def)
		} else {
			g.line(`%s=${__HASH_POS[%d]-}`, a.Name, idx)
			g.line(`if [[ -z $%s ]]; then`, a.Name)
			g.line(`  printf 'missing argument: %s\n' >&2`, a.Name)
			g.line(`  __hash_usage >&2`)
			g.line(`  exit 1`)
			g.line(`fi`)
		}
	}

	for _, a := range args {
		pattern := typePattern(a.Type)
		if pattern == "" {
			continue
		}
		g.line(`if ! [[ $%s =~ %s ]]; then`, a.Name, pattern)
		g.line(`  printf 'argument %s must be %s, got %%s\n' "$%s" >&2`, a.Name, a.Type, a.Name)
		g.line(`  __hash_usage >&2`)
		g.line(`  exit 1`)
		g.line(`fi`)
	}
	g.line("")
}

// genUsage renders the generated help text from the declarations.
func (g *generator) genUsage(positionals, named []*ast.ArgSpec) {
	var synopsis strings.Builder
	synopsis.WriteString(`usage: $(basename "$0")`)
	if len(named) > 0 {
		synopsis.WriteString(" [options]")
	}
	for _, a := range positionals {
		fmt.Fprintf(&synopsis, " <%s>", a.Name)
	}

	g.line("__hash_usage() {")
	g.indent++
	g.line(`cat <<EOF`)
	// Heredoc body: no indentation, single expansion for $0.
	fmt.Fprintf(g.cur, "%s\n", synopsis.String())
	if len(positionals) > 0 {
		fmt.Fprintf(g.cur, "\narguments:\n")
		for _, a := range positionals {
			fmt.Fprintf(g.cur, "  %-12s %-6s %s\n", a.Name, a.Type, a.Desc)
		}
	}
	if len(named) > 0 {
		fmt.Fprintf(g.cur, "\noptions:\n")
		for _, a := range named {
			flag := "--" + a.Name
			fmt.Fprintf(g.cur, "  %-12s %-6s %s\n", flag, a.Type, a.Desc)
		}
	}
	fmt.Fprintf(g.cur, "EOF\n")
	g.indent--
	g.line("}")
}
