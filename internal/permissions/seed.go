package permissions

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// SeedNamespace derives stable permission ids from names so that seeding
// the same file twice updates rows instead of duplicating them.
var SeedNamespace = uuid.MustParse("6f1c2a8e-4b7d-5c3e-9a10-2d4e8f6b1c35")

// SeedNode is one entry of a catalog seed file.
type SeedNode struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Category    string     `yaml:"category,omitempty"`
	Children    []SeedNode `yaml:"children,omitempty"`
}

// Seed is the parsed catalog seed file.
type Seed struct {
	Permissions []SeedNode `yaml:"permissions"`
}

// ParseSeed decodes a YAML seed document.
func ParseSeed(r io.Reader) (*Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		if err == io.EOF {
			return &seed, nil
		}
		return nil, fmt.Errorf("permissions: decode seed: %w", err)
	}
	return &seed, nil
}

// LoadSeedFile opens and parses the seed file at path.
func LoadSeedFile(path string) (*Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("permissions: open seed: %w", err)
	}
	defer f.Close()
	return ParseSeed(f)
}

// SeedID returns the deterministic id used for a seeded permission name.
func SeedID(name string) uuid.UUID {
	return uuid.NewSHA1(SeedNamespace, []byte(strings.ToLower(strings.TrimSpace(name))))
}

// Flatten converts the nested seed into permissions. Children inherit the
// category of their root and must extend their parent's name.
func (s *Seed) Flatten() ([]Permission, error) {
	var out []Permission
	for _, root := range s.Permissions {
		category, err := ParseCategory(root.Category)
		if err != nil {
			return nil, fmt.Errorf("%w: %q on %s", err, root.Category, root.Name)
		}
		out, err = flattenNode(out, root, nil, category)
		if err != nil {
			return nil, err
		}
	}
	if _, err := NewCatalog(out); err != nil {
		return nil, err
	}
	return out, nil
}

func flattenNode(out []Permission, n SeedNode, parent *Permission, category Category) ([]Permission, error) {
	name := strings.TrimSpace(n.Name)
	if !strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, n.Name)
	}
	if n.Category != "" {
		c, err := ParseCategory(n.Category)
		if err != nil {
			return nil, fmt.Errorf("%w: %q on %s", err, n.Category, name)
		}
		if c != category {
			return nil, fmt.Errorf("%w: %s must stay in category %s", ErrUnknownCategory, name, category)
		}
	}
	p := Permission{
		ID:          SeedID(name),
		Name:        name,
		Description: strings.TrimSpace(n.Description),
		Category:    category,
	}
	if parent != nil {
		if !strings.HasPrefix(strings.ToLower(name), strings.ToLower(parent.Name)+"/") {
			return nil, fmt.Errorf("%w: %s is not nested under %s", ErrInvalidName, name, parent.Name)
		}
		parentID := parent.ID
		p.ParentID = &parentID
	}
	out = append(out, p)
	var err error
	for _, child := range n.Children {
		out, err = flattenNode(out, child, &p, category)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
