package scoring

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type KeywordWeight struct {
	Team   string  `yaml:"team" json:"team"`
	Weight float64 `yaml:"weight" json:"weight"`
}

// Tables holds the keyword and component routing rules. Build it once with
// NewTables or LoadTables; it is never mutated afterwards and is safe to
// share between goroutines.
type Tables struct {
	keywords   map[string][]KeywordWeight
	components map[string]string
}

type tablesFile struct {
	Keywords   map[string][]KeywordWeight `yaml:"keywords"`
	Components map[string]string          `yaml:"components"`
}

// NewTables copies its inputs. Keywords are matched case-insensitively;
// components are matched exactly.
func NewTables(keywords map[string][]KeywordWeight, components map[string]string) Tables {
	t := Tables{
		keywords:   make(map[string][]KeywordWeight, len(keywords)),
		components: make(map[string]string, len(components)),
	}
	for k, ws := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		t.keywords[k] = append(t.keywords[k], ws...)
	}
	for c, team := range components {
		t.components[c] = team
	}
	return t
}

func DefaultTables() Tables {
	nandi := func(w float64) []KeywordWeight { return []KeywordWeight{{Team: "Team Nandi", Weight: w}} }
	pas := func(w float64) []KeywordWeight { return []KeywordWeight{{Team: "Team ANF PaS", Weight: w}} }
	himalaya := func(w float64) []KeywordWeight { return []KeywordWeight{{Team: "Team Himalaya", Weight: w}} }
	return NewTables(
		map[string][]KeywordWeight{
			"smb":             nandi(1.5),
			"cifs":            nandi(1.5),
			"kerberos":        nandi(1.4),
			"nfsv4":           nandi(1.4),
			"domain":          nandi(1.3),
			"volume creation": nandi(1.2),
			"scale":           pas(1.4),
			"infrastructure":  pas(1.5),
			"workload":        pas(1.3),
			"backup":          himalaya(1.5),
			"delete":          himalaya(1.4),
		},
		map[string]string{
			"SMB":               "Team Nandi",
			"CIFS":              "Team Nandi",
			"NFS":               "Team Nandi",
			"Kerberos":          "Team Nandi",
			"Volume Management": "Team Nandi",
			"Scale":             "Team ANF PaS",
			"Infrastructure":    "Team ANF PaS",
			"Backup":            "Team Himalaya",
		},
	)
}

// LoadTables reads a YAML rules file. An empty path yields DefaultTables.
func LoadTables(path string) (Tables, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultTables(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("read scoring tables: %w", err)
	}
	var f tablesFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return Tables{}, fmt.Errorf("parse scoring tables: %w", err)
	}
	for k, ws := range f.Keywords {
		for _, w := range ws {
			if w.Team == "" || w.Weight < 0 {
				return Tables{}, fmt.Errorf("keyword %q: team required and weight must be non-negative", k)
			}
		}
	}
	return NewTables(f.Keywords, f.Components), nil
}

// KeywordBoost sums weight*0.1 over keywords that appear in content and
// map to team, capped at MaxKeywordBoost.
func (t Tables) KeywordBoost(team, content string) float64 {
	lower := strings.ToLower(content)
	var boost float64
	for kw, weights := range t.keywords {
		if !strings.Contains(lower, kw) {
			continue
		}
		for _, w := range weights {
			if w.Team == team {
				boost += w.Weight * keywordFactor
			}
		}
	}
	if boost > MaxKeywordBoost {
		return MaxKeywordBoost
	}
	return boost
}

// ComponentBoost is 0.15 per ticket component routed to team, capped at
// MaxComponentBoost.
func (t Tables) ComponentBoost(team string, components []string) float64 {
	n := 0
	for _, c := range components {
		if t.components[c] == team {
			n++
		}
	}
	boost := float64(n) * componentFactor
	if boost > MaxComponentBoost {
		return MaxComponentBoost
	}
	return boost
}

// Keywords lists the configured keywords in sorted order.
func (t Tables) Keywords() []string {
	out := make([]string, 0, len(t.keywords))
	for k := range t.keywords {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (t Tables) ComponentTeam(component string) (string, bool) {
	team, ok := t.components[component]
	return team, ok
}
