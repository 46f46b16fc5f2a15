package cli

import (
	"fmt"
	"io"

	"github.com/hash-lang/hash/core/diag"
)

// reporter renders diagnostics for terminal output.
type reporter struct {
	out      io.Writer
	useColor bool
}

// report prints every diagnostic with its snippet, errors before a final
// one-line summary. It returns whether any diagnostic was fatal.
func (r *reporter) report(name string, diags diag.List) bool {
	for _, d := range diags {
		label := colorize("warning", colorYellow, r.useColor)
		if d.Severity() == diag.SeverityError {
			label = colorize("error", colorRed, r.useColor)
		}
		fmt.Fprintf(r.out, "%s: %s: %s\n", name, label, d.Error())
	}

	errs, warns := len(diags.Errors()), len(diags.Warnings())
	switch {
	case errs > 0:
		fmt.Fprintf(r.out, "%s: %s\n", name,
			colorize(fmt.Sprintf("%d error(s), %d warning(s)", errs, warns), colorRed, r.useColor))
	case warns > 0:
		fmt.Fprintf(r.out, "%s: %s\n", name,
			colorize(fmt.Sprintf("%d warning(s)", warns), colorYellow, r.useColor))
	}
	return errs > 0
}

func (r *reporter) ok(name string) {
	fmt.Fprintf(r.out, "%s: %s\n", name, colorize("ok", colorGreen, r.useColor))
}
