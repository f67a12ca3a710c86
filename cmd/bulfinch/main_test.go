package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRunPrintsResult(t *testing.T) {
	path := writeFile(t, t.TempDir(), "main.bf", "fn id(x) { x }\nfn main() { id(\"hello\") }\n")
	out, _, err := execute(t, "run", path)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "hello\n" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRunReportsRuntimeError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "main.bf", "fn main() { nowhere() }\n")
	_, _, err := execute(t, "run", path)
	if err == nil || !strings.Contains(err.Error(), "unknown global: nowhere") {
		t.Fatalf("expected unknown global error, got %v", err)
	}
}

func TestRunHonorsInstructionLimit(t *testing.T) {
	path := writeFile(t, t.TempDir(), "loop.bf", "fn main() { main() }\n")
	_, _, err := execute(t, "run", "--instruction-limit", "50", path)
	if err == nil || !strings.Contains(err.Error(), "instruction limit") {
		t.Fatalf("expected instruction limit error, got %v", err)
	}
}

func TestRunTraceLogsInstructions(t *testing.T) {
	path := writeFile(t, t.TempDir(), "main.bf", "fn main() { 1 }\n")
	_, errOut, err := execute(t, "run", "--trace", path)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(errOut, "OP_CONSTANT") || !strings.Contains(errOut, "OP_RETURN") {
		t.Fatalf("expected traced opcodes, got %q", errOut)
	}
}

func TestDisasmPrintsFunctions(t *testing.T) {
	path := writeFile(t, t.TempDir(), "main.bf", "fn main() { var x = 1  fn() { x } }\n")
	out, _, err := execute(t, "disasm", "--log-level", "error", path)
	if err != nil {
		t.Fatalf("disasm: %v", err)
	}
	for _, want := range []string{"func main", "func main$1", "OP_CLOSURE", "OP_ADD_UPVAR", "OP_LOAD_UPVAR"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestTestCommand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ok.bf", "# expect: true\nfn main() { true }\n")
	writeFile(t, dir, "bad.bf", "# expect: 2\nfn main() { 1 }\n")

	out, _, err := execute(t, "test", "--log-level", "error", dir)
	if err == nil {
		t.Fatalf("expected failure for bad.bf")
	}
	if !strings.Contains(out, "PASS "+filepath.Join(dir, "ok.bf")) {
		t.Fatalf("expected PASS line, got:\n%s", out)
	}
	if !strings.Contains(out, "FAIL ") || !strings.Contains(out, "1 passed, 1 failed") {
		t.Fatalf("expected FAIL line and summary, got:\n%s", out)
	}
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "bulfinch.toml", "script_ext = \".lox\"\ncolor = \"never\"\nlog_level = \"error\"\n")
	writeFile(t, dir, "one.lox", "# expect: 1\nfn main() { 1 }\n")
	writeFile(t, dir, "ignored.bf", "not a script\n")

	out, _, err := execute(t, "test", "--config", cfg, dir)
	if err != nil {
		t.Fatalf("test: %v", err)
	}
	if !strings.Contains(out, "1 passed, 0 failed") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestInvalidLogLevel(t *testing.T) {
	path := writeFile(t, t.TempDir(), "main.bf", "fn main() { 1 }\n")
	if _, _, err := execute(t, "run", "--log-level", "loud", path); err == nil {
		t.Fatalf("expected invalid log level error")
	}
}
