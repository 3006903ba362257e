// Package model defines the data models for the Crimson City bot.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Language is a supported interface language.
type Language string

// Supported languages.
const (
	LangEN Language = "en"
	LangFA Language = "fa"
)

// DefaultLanguage is assigned to new players.
const DefaultLanguage = LangEN

// Languages returns every supported language in display order.
func Languages() []Language {
	return []Language{LangEN, LangFA}
}

// Valid reports whether l is a supported language.
func (l Language) Valid() bool {
	return l == LangEN || l == LangFA
}

// Lifecycle is the onboarding stage of a player.
type Lifecycle string

// Lifecycle stages, in progression order.
const (
	LifecycleUnregistered     Lifecycle = "unregistered"
	LifecyclePendingApproval  Lifecycle = "pending_approval"
	LifecycleApproved         Lifecycle = "approved"
	LifecycleCharacterCreated Lifecycle = "character_created"
)

// rank orders lifecycle stages.
func (l Lifecycle) rank() int {
	switch l {
	case LifecyclePendingApproval:
		return 1
	case LifecycleApproved:
		return 2
	case LifecycleCharacterCreated:
		return 3
	default:
		return 0
	}
}

// Valid reports whether l is a known lifecycle stage.
func (l Lifecycle) Valid() bool {
	switch l {
	case LifecycleUnregistered, LifecyclePendingApproval, LifecycleApproved, LifecycleCharacterCreated:
		return true
	}
	return false
}

// AtLeast reports whether l is the same stage as other or a later one.
func (l Lifecycle) AtLeast(other Lifecycle) bool {
	return l.rank() >= other.rank()
}

// Profession is the trade chosen during character creation.
type Profession string

// Professions.
const (
	ProfessionHustler      Profession = "hustler"
	ProfessionIntellectual Profession = "intellectual"
	ProfessionCharmer      Profession = "charmer"
)

// Professions returns all professions in display order.
func Professions() []Profession {
	return []Profession{ProfessionHustler, ProfessionIntellectual, ProfessionCharmer}
}

// Valid reports whether p is a known profession.
func (p Profession) Valid() bool {
	return p == ProfessionHustler || p == ProfessionIntellectual || p == ProfessionCharmer
}

// BonusStat is the stat raised by choosing the profession.
func (p Profession) BonusStat() Stat {
	switch p {
	case ProfessionHustler:
		return StatStreetSmarts
	case ProfessionIntellectual:
		return StatIntellect
	case ProfessionCharmer:
		return StatCharm
	}
	return ""
}

// ProfessionBonus is added to the profession's stat on character creation.
const ProfessionBonus = 2

// Stat names a player attribute.
type Stat string

// Stats known to the game.
const (
	StatCharm        Stat = "charm"
	StatIntellect    Stat = "intellect"
	StatStreetSmarts Stat = "street_smarts"
)

// StatNames returns all stat names in display order.
func StatNames() []Stat {
	return []Stat{StatCharm, StatIntellect, StatStreetSmarts}
}

// ParseStat parses a stat name, case-insensitively.
func ParseStat(s string) (Stat, bool) {
	st := Stat(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range StatNames() {
		if st == known {
			return st, true
		}
	}
	return "", false
}

// Stats holds a player's attributes.
type Stats struct {
	Charm        int64 `json:"charm"`
	Intellect    int64 `json:"intellect"`
	StreetSmarts int64 `json:"street_smarts"`
}

// Get returns the value of the named stat.
func (s Stats) Get(stat Stat) int64 {
	switch stat {
	case StatCharm:
		return s.Charm
	case StatIntellect:
		return s.Intellect
	case StatStreetSmarts:
		return s.StreetSmarts
	}
	return 0
}

// Set assigns the named stat.
func (s *Stats) Set(stat Stat, value int64) error {
	switch stat {
	case StatCharm:
		s.Charm = value
	case StatIntellect:
		s.Intellect = value
	case StatStreetSmarts:
		s.StreetSmarts = value
	default:
		return fmt.Errorf("unknown stat %q", stat)
	}
	return nil
}

// Default values for new players.
const (
	InitialStat     = 1
	InitialCurrency = 100
)

// Player is the persistent game record of one Telegram user.
type Player struct {
	ID         int64      `json:"id" db:"id"`
	Language   Language   `json:"language" db:"language"`
	Lifecycle  Lifecycle  `json:"lifecycle" db:"lifecycle"`
	VoiceRef   string     `json:"voice_ref,omitempty" db:"voice_ref"`
	Name       string     `json:"name,omitempty" db:"name"`
	Profession Profession `json:"profession,omitempty" db:"profession"`
	Location   string     `json:"location" db:"location"`
	Inventory  []string   `json:"inventory"`
	Stats      Stats      `json:"stats"`
	Currency   int64      `json:"currency" db:"currency"`
	IsVIP      bool       `json:"is_vip" db:"is_vip"`
	Version    int64      `json:"version" db:"version"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// NewPlayer returns the default record for a first contact.
func NewPlayer(id int64, startLocation string) *Player {
	now := time.Now().UTC()
	return &Player{
		ID:        id,
		Language:  DefaultLanguage,
		Lifecycle: LifecycleUnregistered,
		Location:  startLocation,
		Inventory: []string{},
		Stats: Stats{
			Charm:        InitialStat,
			Intellect:    InitialStat,
			StreetSmarts: InitialStat,
		},
		Currency:  InitialCurrency,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the player.
func (p *Player) Clone() *Player {
	if p == nil {
		return nil
	}
	c := *p
	c.Inventory = append([]string(nil), p.Inventory...)
	if c.Inventory == nil {
		c.Inventory = []string{}
	}
	return &c
}

// IsApproved reports whether the player passed the approval gate.
func (p *Player) IsApproved() bool {
	return p.Lifecycle.AtLeast(LifecycleApproved)
}

// HasName reports whether a character name was chosen.
func (p *Player) HasName() bool {
	return p.Name != ""
}

// HasCharacter reports whether character creation is complete.
func (p *Player) HasCharacter() bool {
	return p.Lifecycle == LifecycleCharacterCreated
}

// ChooseProfession sets the profession, applies its stat bonus and completes
// character creation. It must be called at most once per player.
func (p *Player) ChooseProfession(prof Profession) error {
	if !prof.Valid() {
		return fmt.Errorf("unknown profession %q", prof)
	}
	if p.Profession != "" {
		return fmt.Errorf("profession already chosen")
	}
	stat := prof.BonusStat()
	if err := p.Stats.Set(stat, p.Stats.Get(stat)+ProfessionBonus); err != nil {
		return err
	}
	p.Profession = prof
	p.Lifecycle = LifecycleCharacterCreated
	return nil
}
