// Package generator builds deterministic Person/KNOWS graphs and expresses
// them as idempotent MERGE statements for the gateway.
package generator

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

const (
	mergePersons = `UNWIND $rows AS row
MERGE (p:Person {id: row.id})
SET p.name = row.name, p.email = row.email, p.age = row.age, p.city = row.city`

	mergeKnows = `UNWIND $rows AS row
MATCH (a:Person {id: row.from}), (b:Person {id: row.to})
MERGE (a)-[k:KNOWS]->(b)
SET k.since = row.since`
)

// Person is one generated node.
type Person struct {
	ID    string
	Name  string
	Email string
	Age   int64
	City  string
}

// Knows is one generated directed relationship.
type Knows struct {
	From  string
	To    string
	Since int64
}

// Dataset contains the generated graph.
type Dataset struct {
	Persons []Person
	Knows   []Knows
}

// Statement is a named parameterised query.
type Statement struct {
	Name   string
	Query  string
	Params map[string]any
}

// Generator produces synthetic graph data. The same seed always yields the
// same dataset.
type Generator struct {
	cfg           Config
	rand          *rand.Rand
	nameFragments nameFragments
}

// New returns a configured Generator instance.
func New(cfg Config) *Generator {
	defaults := DefaultConfig()
	if cfg.NumPersons <= 0 {
		cfg.NumPersons = defaults.NumPersons
	}
	if cfg.KnowsPerPerson < 0 {
		cfg.KnowsPerPerson = 0
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaults.ChunkSize
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	return &Generator{
		cfg:           cfg,
		rand:          rand.New(rand.NewSource(cfg.Seed)),
		nameFragments: defaultNameFragments(),
	}
}

// Generate synthesises persons and KNOWS edges. It respects context cancellation.
func (g *Generator) Generate(ctx context.Context) (Dataset, error) {
	persons := make([]Person, g.cfg.NumPersons)
	for i := range persons {
		if err := ctx.Err(); err != nil {
			return Dataset{}, err
		}
		first, last := g.randomName()
		persons[i] = Person{
			ID:    fmt.Sprintf("P-%06d", i+1),
			Name:  first + " " + last,
			Email: g.randomEmail(first, last, i+1),
			Age:   int64(18 + g.rand.Intn(63)),
			City:  g.randomCity(),
		}
	}

	var knows []Knows
	if len(persons) > 1 {
		seen := make(map[[2]int]struct{})
		for i := range persons {
			if err := ctx.Err(); err != nil {
				return Dataset{}, err
			}
			for n := g.edgeCount(); n > 0; n-- {
				j := g.rand.Intn(len(persons) - 1)
				if j >= i {
					j++
				}
				key := [2]int{i, j}
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				knows = append(knows, Knows{
					From:  persons[i].ID,
					To:    persons[j].ID,
					Since: int64(1990 + g.rand.Intn(35)),
				})
			}
		}
	}

	return Dataset{Persons: persons, Knows: knows}, nil
}

// Statements renders the dataset as MERGE statements: every person chunk
// precedes every relationship chunk. Running them twice leaves the graph
// unchanged.
func (g *Generator) Statements(d Dataset) []Statement {
	return append(g.PersonStatements(d), g.KnowsStatements(d)...)
}

// PersonStatements renders the Person nodes in chunks.
func (g *Generator) PersonStatements(d Dataset) []Statement {
	var out []Statement
	for start := 0; start < len(d.Persons); start += g.cfg.ChunkSize {
		end := min(start+g.cfg.ChunkSize, len(d.Persons))
		rows := make([]any, 0, end-start)
		for _, p := range d.Persons[start:end] {
			rows = append(rows, map[string]any{
				"id":    p.ID,
				"name":  p.Name,
				"email": p.Email,
				"age":   p.Age,
				"city":  p.City,
			})
		}
		out = append(out, Statement{
			Name:   fmt.Sprintf("persons-%d", len(out)+1),
			Query:  mergePersons,
			Params: map[string]any{"rows": rows},
		})
	}
	return out
}

// KnowsStatements renders the KNOWS relationships in chunks. They match
// persons by id, so they must run after PersonStatements.
func (g *Generator) KnowsStatements(d Dataset) []Statement {
	var out []Statement
	for start := 0; start < len(d.Knows); start += g.cfg.ChunkSize {
		end := min(start+g.cfg.ChunkSize, len(d.Knows))
		rows := make([]any, 0, end-start)
		for _, k := range d.Knows[start:end] {
			rows = append(rows, map[string]any{
				"from":  k.From,
				"to":    k.To,
				"since": k.Since,
			})
		}
		out = append(out, Statement{
			Name:   fmt.Sprintf("knows-%d", len(out)+1),
			Query:  mergeKnows,
			Params: map[string]any{"rows": rows},
		})
	}
	return out
}

// edgeCount draws a per-person edge count whose mean is KnowsPerPerson.
func (g *Generator) edgeCount() int {
	mean := g.cfg.KnowsPerPerson
	if mean <= 0 {
		return 0
	}
	whole := int(mean)
	if g.rand.Float64() < mean-float64(whole) {
		whole++
	}
	return whole
}

func (g *Generator) randomName() (string, string) {
	return g.nameFragments.first[g.rand.Intn(len(g.nameFragments.first))],
		g.nameFragments.last[g.rand.Intn(len(g.nameFragments.last))]
}

func (g *Generator) randomEmail(first, last string, n int) string {
	domain := g.nameFragments.domains[g.rand.Intn(len(g.nameFragments.domains))]
	return fmt.Sprintf("%s.%s%d@%s", first, last, n, domain)
}

func (g *Generator) randomCity() string {
	return g.nameFragments.cities[g.rand.Intn(len(g.nameFragments.cities))]
}

type nameFragments struct {
	first   []string
	last    []string
	domains []string
	cities  []string
}

func defaultNameFragments() nameFragments {
	return nameFragments{
		first:   []string{"Jane", "John", "Alex", "Priya", "Liu", "Maria", "Omar", "Sofia", "Noah", "Emma", "Lucas", "Mia", "Ava", "Ethan", "Zara"},
		last:    []string{"Doe", "Smith", "Chen", "Patel", "Garcia", "Khan", "Kim", "Ivanov", "Nguyen", "Silva", "Brown", "Lee"},
		domains: []string{"example.com", "mail.com", "example.org"},
		cities:  []string{"San Francisco", "New York", "Seattle", "Austin", "Chicago", "Miami", "Denver", "Boston", "Los Angeles"},
	}
}
