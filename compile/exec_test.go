package compile

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// runScript compiles source and executes the generated script under bash,
// returning its combined output. Skips when bash is not installed.
func runScript(t *testing.T, source string) string {
	t.Helper()
	bash, err := exec.LookPath("bash")
	if err != nil {
		t.Skip("bash not installed")
	}

	res, diags := compileSource(t, source, Options{})
	require.False(t, diags.HasErrors(), "diags: %s", diags.Error())
	require.NotNil(t, res)

	path := filepath.Join(t.TempDir(), "script.sh")
	require.NoError(t, os.WriteFile(path, []byte(res.Script), 0o755))
	out, err := exec.Command(bash, path).CombinedOutput()
	require.NoError(t, err, "script failed:\n%s", out)
	return string(out)
}

func TestRunFactorial(t *testing.T) {
	out := runScript(t, strings.Join([]string{
		"fn factorial",
		"    case 0 = 1",
		"    case n = n * factorial (n - 1)",
		"val r = factorial 5",
		"print \"$r\"",
		"",
	}, "\n"))
	require.Equal(t, "120\n", out)
}

func TestRunFilterPipeline(t *testing.T) {
	out := runScript(t, strings.Join([]string{
		"val big = [1 2 3] | filter (_ > 1) | reverse",
		"val s = join big \" \"",
		"print \"$s\"",
		"",
	}, "\n"))
	require.Equal(t, "3 2\n", out)
}

func TestRunRanges(t *testing.T) {
	out := runScript(t, strings.Join([]string{
		"val up = join [0..5] \" \"",
		"val down = join [5..0] \" \"",
		"val stepped = join [0 2..10] \" \"",
		"print \"$up\"",
		"print \"$down\"",
		"print \"$stepped\"",
		"",
	}, "\n"))
	require.Equal(t, "0 1 2 3 4 5\n5 4 3 2 1 0\n0 2 4 6 8 10\n", out)
}

func TestRunIntegerComparisons(t *testing.T) {
	out := runScript(t, strings.Join([]string{
		"if 2 > 1",
		"    print \"bigger\"",
		"var n = 3",
		"while n > 0",
		"    print \"$n\"",
		"    n = n - 1",
		"",
	}, "\n"))
	require.Equal(t, "bigger\n3\n2\n1\n", out)
}

func TestRunClosureCaptures(t *testing.T) {
	out := runScript(t, strings.Join([]string{
		"val n = 10",
		"val added = map (x -> x + n) [1 2]",
		"val s = join added \" \"",
		"print \"$s\"",
		"",
	}, "\n"))
	require.Equal(t, "11 12\n", out)
}
