package suite

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/texerai/maveric2/pkg/faults"
	"github.com/texerai/maveric2/pkg/utils"
	"gopkg.in/yaml.v3"
)

// ELFExt is the extension of the test binaries looked up in the ELF directory
const ELFExt = ".elf"

// Test is a manifest entry
type Test struct {
	Name string
	// Mem is the instruction memory image loaded by the DUT
	Mem string
	// ELF is the test binary run by the reference simulator
	ELF string
}

// Manifest is the ordered list of known tests
type Manifest struct {
	Tests []Test
}

// ParseManifest parses a "name: path" document. Entries keep their file
// order. A value is either the memory image path or a mapping with "mem"
// and "elf" keys. Tests without an explicit binary get <elfDir>/<name>.elf.
func ParseManifest(r io.Reader, elfDir string) (*Manifest, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return &Manifest{}, nil
		}
		return nil, utils.MakeError(faults.ErrInputDefect, "malformed test manifest: %v", err)
	}

	if len(doc.Content) == 0 {
		return &Manifest{}, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, utils.MakeError(faults.ErrInputDefect, "test manifest line %d: expected name: path entries", root.Line)
	}

	manifest := &Manifest{}
	seen := make(map[string]bool)

	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]

		name := strings.TrimSpace(key.Value)
		if name == "" {
			return nil, utils.MakeError(faults.ErrInputDefect, "test manifest line %d: empty test name", key.Line)
		}
		if seen[name] {
			return nil, utils.MakeError(faults.ErrInputDefect, "test manifest line %d: duplicated test %s", key.Line, name)
		}
		seen[name] = true

		test := Test{Name: name}

		switch value.Kind {
		case yaml.ScalarNode:
			test.Mem = strings.TrimSpace(value.Value)
		case yaml.MappingNode:
			var fields struct {
				Mem string `yaml:"mem"`
				ELF string `yaml:"elf"`
			}
			if err := value.Decode(&fields); err != nil {
				return nil, utils.MakeError(faults.ErrInputDefect, "test manifest line %d: %v", value.Line, err)
			}
			test.Mem = fields.Mem
			test.ELF = fields.ELF
		default:
			return nil, utils.MakeError(faults.ErrInputDefect, "test manifest line %d: unexpected value for %s", value.Line, name)
		}

		if test.ELF == "" && elfDir != "" {
			test.ELF = filepath.Join(elfDir, name+ELFExt)
		}

		manifest.Tests = append(manifest.Tests, test)
	}

	return manifest, nil
}

// LoadManifest reads and parses a manifest file
func LoadManifest(fs afero.Fs, path, elfDir string) (*Manifest, error) {
	f, err := fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, utils.MakeError(faults.ErrInputDefect, "test manifest not found: %s", path)
		}
		return nil, errors.Wrapf(err, "cannot open test manifest %s", path)
	}
	defer f.Close()

	m, err := ParseManifest(f, elfDir)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return m, nil
}

// Names returns the test names in manifest order
func (m *Manifest) Names() []string {
	return lo.Map(m.Tests, func(t Test, _ int) string { return t.Name })
}

// Select returns the named tests in the requested order, dropping repeated
// names. No names selects every test.
func (m *Manifest) Select(names ...string) ([]Test, error) {
	if len(names) == 0 {
		return m.Tests, nil
	}

	byName := lo.KeyBy(m.Tests, func(t Test) string { return t.Name })

	names = lo.Uniq(names)
	if unknown := lo.Filter(names, func(n string, _ int) bool { _, ok := byName[n]; return !ok }); len(unknown) > 0 {
		return nil, utils.MakeError(faults.ErrInputDefect, "unknown tests: %s", strings.Join(unknown, ", "))
	}

	return lo.Map(names, func(n string, _ int) Test { return byName[n] }), nil
}

// GroupPath returns the path of a test group list next to the manifest
func GroupPath(manifestPath, group string) string {
	return filepath.Join(filepath.Dir(manifestPath), "list-"+group+".txt")
}

// LoadGroup reads a test group list: one test name per line
func LoadGroup(fs afero.Fs, path string) ([]string, error) {
	f, err := fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, utils.MakeError(faults.ErrInputDefect, "test group not found: %s", path)
		}
		return nil, errors.Wrapf(err, "cannot open test group %s", path)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if name := strings.TrimSpace(scanner.Text()); name != "" {
			names = append(names, name)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "error reading test group %s", path)
	}

	return names, nil
}
