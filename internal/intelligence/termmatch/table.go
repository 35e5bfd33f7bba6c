package termmatch

import (
	"embed"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/turtacn/ResumeLens/pkg/errors"
	"github.com/turtacn/ResumeLens/pkg/types/resume"
)

//go:embed tables/*.yaml
var builtinFS embed.FS

// Rule pairs one pattern with the label its matches receive.
type Rule struct {
	Pattern string
	Label   resume.Label
}

// Table is a versioned, ordered list of rules. Score is the confidence the
// annotation tool shows for predictions produced from the table.
type Table struct {
	Version string
	Score   float64
	Rules   []Rule
}

type tableFile struct {
	Version string  `yaml:"version"`
	Score   float64 `yaml:"score"`
	Rules   []struct {
		Label    string   `yaml:"label"`
		Patterns []string `yaml:"patterns"`
	} `yaml:"rules"`
}

// ParseTable decodes a YAML table. Grouped rules are expanded in order.
func ParseTable(data []byte) (Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Table{}, errors.Wrap(err, errors.ErrCodeConfiguration, "termmatch: decode table")
	}
	if f.Version == "" {
		return Table{}, errors.Configuration("termmatch: table version is required")
	}
	t := Table{Version: f.Version, Score: f.Score}
	for gi, g := range f.Rules {
		label, ok := resume.ParseLabel(g.Label)
		if !ok {
			return Table{}, errors.Configuration("termmatch: unknown label").
				WithDetailf("rule group %d: label=%q", gi, g.Label)
		}
		for _, p := range g.Patterns {
			t.Rules = append(t.Rules, Rule{Pattern: p, Label: label})
		}
	}
	return t, nil
}

// LoadTable reads and decodes a YAML table file.
func LoadTable(file string) (Table, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return Table{}, errors.Wrap(err, errors.ErrCodeConfiguration, fmt.Sprintf("termmatch: read %s", file))
	}
	return ParseTable(data)
}

// Builtin returns an embedded table by version name.
func Builtin(name string) (Table, error) {
	data, err := builtinFS.ReadFile(path.Join("tables", name+".yaml"))
	if err != nil {
		return Table{}, errors.Configuration("termmatch: unknown built-in table").WithDetailf("name=%q", name)
	}
	return ParseTable(data)
}

// BuiltinNames lists the embedded tables.
func BuiltinNames() []string {
	entries, _ := builtinFS.ReadDir("tables")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Open resolves ref as a built-in table name first and a file path second.
func Open(ref string) (Table, error) {
	for _, name := range BuiltinNames() {
		if name == ref {
			return Builtin(ref)
		}
	}
	return LoadTable(ref)
}
