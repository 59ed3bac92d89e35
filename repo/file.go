package repo

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadFile populates m from a simple `name = "expression"`-per-line document
// (one definition per line, blank lines and lines starting with '#'
// ignored). This is a deliberate standard-library convenience for the CLI,
// not a general configuration format — see DESIGN.md for why no TOML/YAML
// dependency from the example pack ended up reachable here.
func (m *Map) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, expr, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("repo: %s:%d: expected \"name = expression\", got %q", path, lineNo, line)
		}
		name = strings.TrimSpace(name)
		expr = strings.TrimSpace(expr)
		expr = strings.TrimPrefix(expr, `"`)
		expr = strings.TrimSuffix(expr, `"`)
		m.Set(name, expr)
	}
	return scanner.Err()
}
