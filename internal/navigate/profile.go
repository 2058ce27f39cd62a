package navigate

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shpitdev/movement-enricher/internal/locate"
)

// Target names, as used in locator profile files.
const (
	TargetOpenMenu        = "open_menu"
	TargetOpenSearch      = "open_search"
	TargetSearchInput     = "search_input"
	TargetSearchSubmit    = "search_submit"
	TargetFirstResult     = "first_result"
	TargetMovementMenu    = "movement_menu"
	TargetMovementSubview = "movement_subview"
	TargetResultsTable    = "results_table"
)

// Profile holds the locator strategies of every target in the flow.
type Profile struct {
	OpenMenu        locate.Target
	OpenSearch      locate.Target
	SearchInput     locate.Target
	SearchSubmit    locate.Target
	FirstResult     locate.Target
	MovementMenu    locate.Target
	MovementSubview locate.Target
	ResultsTable    locate.Target
}

// Timeouts are the per-candidate waits used by DefaultProfile.
type Timeouts struct {
	Search  time.Duration
	Subview time.Duration
	Script  time.Duration
	Table   time.Duration
}

// DefaultTimeouts mirror the waits the portal needs in practice.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Search:  10 * time.Second,
		Subview: 5 * time.Second,
		Script:  2 * time.Second,
		Table:   10 * time.Second,
	}
}

// DefaultProfile returns the TransfereGov agreement flow.
func DefaultProfile(t Timeouts) Profile {
	def := DefaultTimeouts()
	if t.Search <= 0 {
		t.Search = def.Search
	}
	if t.Subview <= 0 {
		t.Subview = def.Subview
	}
	if t.Script <= 0 {
		t.Script = def.Script
	}
	if t.Table <= 0 {
		t.Table = def.Table
	}

	xpath := func(name, expr string) locate.Target {
		return locate.Target{Name: name, Strategies: []locate.Strategy{
			locate.XPath{Expr: expr, Timeout: t.Search},
		}}
	}

	return Profile{
		OpenMenu:     xpath(TargetOpenMenu, "/html/body/div[1]/div[3]/div[1]/div[1]/div[1]/div[4]"),
		OpenSearch:   xpath(TargetOpenSearch, "/html[1]/body[1]/div[1]/div[3]/div[2]/div[1]/div[1]/ul[1]/li[6]/a[1]"),
		SearchInput:  xpath(TargetSearchInput, "/html[1]/body[1]/div[3]/div[15]/div[3]/div[1]/div[1]/form[1]/table[1]/tbody[1]/tr[2]/td[2]/input[1]"),
		SearchSubmit: xpath(TargetSearchSubmit, "/html[1]/body[1]/div[3]/div[15]/div[3]/div[1]/div[1]/form[1]/table[1]/tbody[1]/tr[2]/td[2]/span[1]/input[1]"),
		FirstResult:  xpath(TargetFirstResult, "/html[1]/body[1]/div[3]/div[15]/div[3]/div[3]/table[1]/tbody[1]/tr[1]/td[1]/div[1]/a[1]"),
		MovementMenu: locate.Target{Name: TargetMovementMenu, Strategies: []locate.Strategy{
			locate.XPath{Expr: "/html/body/div[3]/div[15]/div[1]/div/div[1]/a[6]/div/span/span", Timeout: t.Subview, Clickable: true},
			locate.Script{Selector: "#div_-481524888 > span > span", Timeout: t.Script},
		}},
		MovementSubview: locate.Target{Name: TargetMovementSubview, Strategies: []locate.Strategy{
			locate.XPath{Expr: "/html/body/div[3]/div[15]/div[1]/div/div[2]/a[26]/div/span/span", Timeout: t.Subview, Clickable: true},
			locate.Script{Selector: "#menu_link_-481524888_1304359359 > div > span", Timeout: t.Script},
		}},
		ResultsTable: locate.Target{Name: TargetResultsTable, Strategies: []locate.Strategy{
			locate.XPath{Expr: "/html/body/div[3]/div[16]/div[2]/form/table", Timeout: t.Table},
		}},
	}
}

func (p *Profile) targets() map[string]*locate.Target {
	return map[string]*locate.Target{
		TargetOpenMenu:        &p.OpenMenu,
		TargetOpenSearch:      &p.OpenSearch,
		TargetSearchInput:     &p.SearchInput,
		TargetSearchSubmit:    &p.SearchSubmit,
		TargetFirstResult:     &p.FirstResult,
		TargetMovementMenu:    &p.MovementMenu,
		TargetMovementSubview: &p.MovementSubview,
		TargetResultsTable:    &p.ResultsTable,
	}
}

type profileFile struct {
	Targets map[string][]strategyEntry `yaml:"targets"`
}

type strategyEntry struct {
	XPath     string        `yaml:"xpath"`
	Script    string        `yaml:"script"`
	Timeout   time.Duration `yaml:"timeout"`
	Clickable bool          `yaml:"clickable"`
}

// LoadProfile reads a YAML locator file and applies it on top of base.
// Targets listed in the file replace the base strategies wholesale.
//
//	targets:
//	  movement_menu:
//	    - xpath: /html/body/div[3]/div[15]/div[1]/div/div[1]/a[6]/div/span/span
//	      timeout: 5s
//	      clickable: true
//	    - script: "#div_-481524888 > span > span"
//	      timeout: 2s
func LoadProfile(path string, base Profile) (Profile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read locator profile: %w", err)
	}
	return ParseProfile(b, base)
}

// ParseProfile is LoadProfile over raw YAML bytes.
func ParseProfile(b []byte, base Profile) (Profile, error) {
	var raw profileFile
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return Profile{}, fmt.Errorf("parse locator profile: %w", err)
	}

	out := base
	byName := out.targets()
	names := make([]string, 0, len(raw.Targets))
	for name := range raw.Targets {
		names = append(names, name)
	}
	sort.Strings(names)

	def := DefaultTimeouts()
	for _, name := range names {
		dst, ok := byName[name]
		if !ok {
			return Profile{}, fmt.Errorf("locator profile: unknown target %q", name)
		}
		entries := raw.Targets[name]
		if len(entries) == 0 {
			return Profile{}, fmt.Errorf("locator profile: target %q has no strategies", name)
		}
		strategies := make([]locate.Strategy, 0, len(entries))
		for i, s := range entries {
			xp, sc := strings.TrimSpace(s.XPath), strings.TrimSpace(s.Script)
			switch {
			case xp != "" && sc == "":
				timeout := s.Timeout
				if timeout <= 0 {
					timeout = def.Search
				}
				strategies = append(strategies, locate.XPath{Expr: xp, Timeout: timeout, Clickable: s.Clickable})
			case sc != "" && xp == "":
				timeout := s.Timeout
				if timeout <= 0 {
					timeout = def.Script
				}
				strategies = append(strategies, locate.Script{Selector: sc, Timeout: timeout})
			default:
				return Profile{}, fmt.Errorf("locator profile: %s[%d]: set exactly one of xpath or script", name, i)
			}
		}
		*dst = locate.Target{Name: name, Strategies: strategies}
	}
	return out, nil
}
