// Package world holds the static Crimson City map: locations, the places
// inside them and the NPCs found there. The graph is loaded once at startup,
// validated, and read-only afterwards.
package world

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"crimson-city-bot/internal/model"
)

//go:embed crimson_city.yaml
var defaultGraph []byte

// ErrNotFound is returned when an id does not resolve in the graph.
var ErrNotFound = errors.New("world: id not found")

// Text is a string localized into every supported language.
type Text map[model.Language]string

// In returns the text for lang, falling back to the default language.
func (t Text) In(lang model.Language) string {
	if s, ok := t[lang]; ok && s != "" {
		return s
	}
	return t[model.DefaultLanguage]
}

// Location is a district of the city.
type Location struct {
	ID          string   `yaml:"id"`
	Name        Text     `yaml:"name"`
	Description Text     `yaml:"description"`
	Connections []string `yaml:"connections"`
	Places      []string `yaml:"places"`
}

// SubLocation is a place inside a location.
type SubLocation struct {
	ID          string   `yaml:"id"`
	Name        Text     `yaml:"name"`
	Description Text     `yaml:"description"`
	RequiresVIP bool     `yaml:"requires_vip"`
	NPCs        []string `yaml:"npcs"`
}

// NPC is a non-player character with a single dialogue line.
type NPC struct {
	ID       string `yaml:"id"`
	Name     Text   `yaml:"name"`
	Dialogue Text   `yaml:"dialogue"`
}

type graphFile struct {
	Start     string         `yaml:"start"`
	Locations []*Location    `yaml:"locations"`
	Places    []*SubLocation `yaml:"places"`
	NPCs      []*NPC         `yaml:"npcs"`
}

// Graph is the validated, immutable world.
type Graph struct {
	start        string
	order        []string
	locations    map[string]*Location
	subLocations map[string]*SubLocation
	npcs         map[string]*NPC
}

// Default returns the embedded Crimson City graph.
func Default() (*Graph, error) {
	return Parse(defaultGraph)
}

// LoadFile reads a graph from a YAML file. An empty path loads the default graph.
func LoadFile(path string) (*Graph, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open world file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a graph from r.
func Load(r io.Reader) (*Graph, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read world: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML graph.
func Parse(data []byte) (*Graph, error) {
	var file graphFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse world: %w", err)
	}
	return build(&file)
}

func build(file *graphFile) (*Graph, error) {
	g := &Graph{
		start:        file.Start,
		locations:    make(map[string]*Location, len(file.Locations)),
		subLocations: make(map[string]*SubLocation, len(file.Places)),
		npcs:         make(map[string]*NPC, len(file.NPCs)),
	}

	var errs []error
	for _, loc := range file.Locations {
		if loc == nil || loc.ID == "" {
			errs = append(errs, errors.New("location without id"))
			continue
		}
		if _, dup := g.locations[loc.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate location %q", loc.ID))
			continue
		}
		g.locations[loc.ID] = loc
		g.order = append(g.order, loc.ID)
	}
	for _, sub := range file.Places {
		if sub == nil || sub.ID == "" {
			errs = append(errs, errors.New("place without id"))
			continue
		}
		if _, dup := g.subLocations[sub.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate place %q", sub.ID))
			continue
		}
		g.subLocations[sub.ID] = sub
	}
	for _, npc := range file.NPCs {
		if npc == nil || npc.ID == "" {
			errs = append(errs, errors.New("npc without id"))
			continue
		}
		if _, dup := g.npcs[npc.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate npc %q", npc.ID))
			continue
		}
		g.npcs[npc.ID] = npc
	}

	errs = append(errs, g.validate()...)
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid world: %w", errors.Join(errs...))
	}
	return g, nil
}

// validate checks references and translations.
func (g *Graph) validate() []error {
	var errs []error
	if _, ok := g.locations[g.start]; !ok {
		errs = append(errs, fmt.Errorf("start location %q does not exist", g.start))
	}
	for _, id := range g.order {
		loc := g.locations[id]
		errs = append(errs, checkText("location "+id+" name", loc.Name)...)
		errs = append(errs, checkText("location "+id+" description", loc.Description)...)
		for _, c := range loc.Connections {
			if _, ok := g.locations[c]; !ok {
				errs = append(errs, fmt.Errorf("location %q connects to unknown location %q", id, c))
			}
		}
		for _, p := range loc.Places {
			if _, ok := g.subLocations[p]; !ok {
				errs = append(errs, fmt.Errorf("location %q contains unknown place %q", id, p))
			}
		}
	}
	for id, sub := range g.subLocations {
		errs = append(errs, checkText("place "+id+" name", sub.Name)...)
		errs = append(errs, checkText("place "+id+" description", sub.Description)...)
		for _, n := range sub.NPCs {
			if _, ok := g.npcs[n]; !ok {
				errs = append(errs, fmt.Errorf("place %q references unknown npc %q", id, n))
			}
		}
	}
	for id, npc := range g.npcs {
		errs = append(errs, checkText("npc "+id+" name", npc.Name)...)
		errs = append(errs, checkText("npc "+id+" dialogue", npc.Dialogue)...)
	}
	return errs
}

func checkText(what string, t Text) []error {
	var errs []error
	for _, lang := range model.Languages() {
		if t[lang] == "" {
			errs = append(errs, fmt.Errorf("%s: missing %q translation", what, lang))
		}
	}
	return errs
}

// Start returns the location new players begin in.
func (g *Graph) Start() string {
	return g.start
}

// LocationIDs returns all location ids in file order.
func (g *Graph) LocationIDs() []string {
	return slices.Clone(g.order)
}

// Location looks up a location.
func (g *Graph) Location(id string) (*Location, error) {
	loc, ok := g.locations[id]
	if !ok {
		return nil, fmt.Errorf("location %q: %w", id, ErrNotFound)
	}
	return loc, nil
}

// HasLocation reports whether id is a location.
func (g *Graph) HasLocation(id string) bool {
	_, ok := g.locations[id]
	return ok
}

// SubLocation looks up a place.
func (g *Graph) SubLocation(id string) (*SubLocation, error) {
	sub, ok := g.subLocations[id]
	if !ok {
		return nil, fmt.Errorf("place %q: %w", id, ErrNotFound)
	}
	return sub, nil
}

// NPC looks up an NPC.
func (g *Graph) NPC(id string) (*NPC, error) {
	npc, ok := g.npcs[id]
	if !ok {
		return nil, fmt.Errorf("npc %q: %w", id, ErrNotFound)
	}
	return npc, nil
}

// IsConnected reports whether to is a direct connection of from.
func (g *Graph) IsConnected(from, to string) bool {
	loc, ok := g.locations[from]
	if !ok {
		return false
	}
	return slices.Contains(loc.Connections, to)
}

// Connections returns the locations reachable from id, in declared order.
func (g *Graph) Connections(id string) ([]*Location, error) {
	loc, err := g.Location(id)
	if err != nil {
		return nil, err
	}
	out := make([]*Location, 0, len(loc.Connections))
	for _, c := range loc.Connections {
		out = append(out, g.locations[c])
	}
	return out, nil
}

// VisibleSubLocations returns the places of a location a viewer can see.
// VIP-only places are omitted unless vip is set.
func (g *Graph) VisibleSubLocations(id string, vip bool) ([]*SubLocation, error) {
	loc, err := g.Location(id)
	if err != nil {
		return nil, err
	}
	out := make([]*SubLocation, 0, len(loc.Places))
	for _, p := range loc.Places {
		sub := g.subLocations[p]
		if sub.RequiresVIP && !vip {
			continue
		}
		out = append(out, sub)
	}
	return out, nil
}

// VisibleNPCs returns the NPCs present in the visible places of a location.
func (g *Graph) VisibleNPCs(id string, vip bool) ([]*NPC, error) {
	subs, err := g.VisibleSubLocations(id, vip)
	if err != nil {
		return nil, err
	}
	var out []*NPC
	seen := make(map[string]bool)
	for _, sub := range subs {
		for _, n := range sub.NPCs {
			if seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, g.npcs[n])
		}
	}
	return out, nil
}

// NPCVisibleFrom reports whether npcID can be talked to from the location.
func (g *Graph) NPCVisibleFrom(id, npcID string, vip bool) bool {
	npcs, err := g.VisibleNPCs(id, vip)
	if err != nil {
		return false
	}
	for _, n := range npcs {
		if n.ID == npcID {
			return true
		}
	}
	return false
}
