package manpage

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// RenderError reports that a source file failed every renderer in the chain.
// Ingestion logs and skips it; it never aborts the run.
type RenderError struct {
	Path     string
	Attempts []string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: all renderers failed (%s)", e.Path, strings.Join(e.Attempts, ", "))
}

// Renderer turns a man source file into markdown-ish plain text.
type Renderer interface {
	Name() string
	Render(ctx context.Context, path string) (string, error)
}

type execRenderer struct {
	name string
	argv func(path string) []string
}

func (r *execRenderer) Name() string { return r.name }

func (r *execRenderer) Render(ctx context.Context, path string) (string, error) {
	bin, err := exec.LookPath(r.name)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH: %w", r.name, err)
	}
	args := r.argv(path)
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = filepath.Dir(path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %s: %w (%s)", r.name, filepath.Base(path), err, strings.TrimSpace(stderr.String()))
	}
	out := stdout.String()
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("%s produced empty output for %s", r.name, filepath.Base(path))
	}
	return out, nil
}

// DefaultRenderers returns the renderer chain in preference order:
// mandoc's markdown output, pandoc's man reader, then groff plain text.
func DefaultRenderers() []Renderer {
	return []Renderer{
		&execRenderer{name: "mandoc", argv: func(p string) []string {
			return []string{"-T", "markdown", filepath.Base(p)}
		}},
		&execRenderer{name: "pandoc", argv: func(p string) []string {
			return []string{"-f", "man", "-t", "gfm", filepath.Base(p)}
		}},
		&execRenderer{name: "groff", argv: func(p string) []string {
			return []string{"-T", "utf8", "-man", filepath.Base(p)}
		}},
	}
}

// RenderPage resolves .so include chains and runs the renderer chain,
// returning the rendered text and the name of the renderer that succeeded.
func RenderPage(ctx context.Context, renderers []Renderer, path string) (string, string, error) {
	if resolved, err := resolveSoChain(path); err == nil && resolved != "" {
		path = resolved
	}

	attempts := make([]string, 0, len(renderers))
	for _, r := range renderers {
		out, err := r.Render(ctx, path)
		if err == nil {
			return out, r.Name(), nil
		}
		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}
		attempts = append(attempts, fmt.Sprintf("%s: %v", r.Name(), err))
	}
	return "", "", &RenderError{Path: path, Attempts: attempts}
}

// resolveSoChain follows troff ".so man3/foo.3" includes to the final target.
// Man-pages ship alias pages as one-line .so stubs; rendering the stub in
// place fails when the target lives in a sibling section directory.
func resolveSoChain(path string) (string, error) {
	visited := map[string]bool{}
	current := path
	for {
		if visited[current] {
			return "", fmt.Errorf("circular .so chain at %s", current)
		}
		visited[current] = true

		target, ok, err := readSoTarget(current)
		if err != nil {
			return "", err
		}
		if !ok {
			if current == path {
				return "", nil
			}
			return current, nil
		}

		next := resolveSoTarget(current, target)
		if next == "" {
			return "", fmt.Errorf(".so target %q not found from %s", target, current)
		}
		current = next
	}
}

func readSoTarget(path string) (string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return "", false, scanner.Err()
	}
	line := strings.TrimSpace(scanner.Text())
	if !strings.HasPrefix(line, ".so ") {
		return "", false, nil
	}
	return strings.TrimSpace(strings.TrimPrefix(line, ".so ")), true, nil
}

func resolveSoTarget(from, target string) string {
	dir := filepath.Dir(from)
	candidates := []string{
		filepath.Join(dir, target),
		filepath.Join(filepath.Dir(dir), target),
		filepath.Join(dir, filepath.Base(target)),
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}
