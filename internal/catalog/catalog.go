// Package catalog holds the fixed list of tracks and battle arenas that
// suggestions are attached to.
package catalog

import (
	_ "embed"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/adelansari/tk2-track-namer/internal/store"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type Item struct {
	ID     string `yaml:"id" json:"id"`
	Number int    `yaml:"number" json:"number"`
	Name   string `yaml:"name" json:"name,omitempty"`
	Image  string `yaml:"image" json:"image_url"`
	Hint   string `yaml:"hint" json:"image_hint"`
}

type Catalog struct {
	Tracks []Item `yaml:"tracks"`
	Arenas []Item `yaml:"arenas"`
}

var itemIDPattern = map[store.Kind]*regexp.Regexp{
	store.KindTrack: regexp.MustCompile(`^track-\d{2}$`),
	store.KindArena: regexp.MustCompile(`^arena-\d{2}$`),
}

// Default parses the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	for _, kind := range store.Kinds {
		seen := make(map[string]bool)
		for _, item := range c.Items(kind) {
			if !itemIDPattern[kind].MatchString(item.ID) {
				return nil, fmt.Errorf("catalog: invalid %s id %q", kind, item.ID)
			}
			if seen[item.ID] {
				return nil, fmt.Errorf("catalog: duplicate %s id %q", kind, item.ID)
			}
			seen[item.ID] = true
		}
	}
	return &c, nil
}

// Items returns the items of one kind in catalog order, or both for all.
func (c *Catalog) Items(kind store.Kind) []Item {
	switch kind {
	case store.KindTrack:
		return c.Tracks
	case store.KindArena:
		return c.Arenas
	case store.KindAll:
		out := make([]Item, 0, len(c.Tracks)+len(c.Arenas))
		out = append(out, c.Tracks...)
		return append(out, c.Arenas...)
	default:
		return nil
	}
}

func (c *Catalog) IDs(kind store.Kind) []string {
	items := c.Items(kind)
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids
}

func (c *Catalog) Lookup(kind store.Kind, id string) (Item, bool) {
	for _, item := range c.Items(kind) {
		if item.ID == id {
			return item, true
		}
	}
	return Item{}, false
}
