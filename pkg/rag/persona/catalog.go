package persona

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed personas.yaml
var defaultCatalog []byte

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"

	ModeStandard    = "standard"
	ModeInteractive = "interactive"

	DefaultGrade = "B"
)

type Grade struct {
	Name  string   `yaml:"name"`
	Focus string   `yaml:"focus"`
	Rules []string `yaml:"rules"`
}

type Mode struct {
	Intro             string           `yaml:"intro"`
	Tools             []string         `yaml:"tools"`
	EnforceSequential bool             `yaml:"enforce_sequential"`
	HighQualityHint   string           `yaml:"high_quality_hint"`
	Rules             []string         `yaml:"rules"`
	Grades            map[string]Grade `yaml:"grades"`
}

type Role struct {
	Modes map[string]Mode `yaml:"modes"`
}

type Catalog struct {
	AssistantName string          `yaml:"assistant_name"`
	Roles         map[string]Role `yaml:"roles"`
}

// Persona is a fully resolved role/mode/grade combination.
type Persona struct {
	Role              string
	Mode              string
	Grade             string
	Name              string
	Focus             string
	Intro             string
	GradeRules        []string
	ModeRules         []string
	Tools             []string
	EnforceSequential bool
	HighQualityHint   string
}

func Load(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse persona catalog: %w", err)
	}
	if _, ok := c.Roles[RoleStudent]; !ok {
		return nil, fmt.Errorf("persona catalog: missing role %q", RoleStudent)
	}
	return &c, nil
}

// Default loads the embedded catalog.
func Default() (*Catalog, error) {
	return Load(defaultCatalog)
}

// Resolve picks a persona, falling back to student, standard mode and the
// default grade when a value is unknown.
func (c *Catalog) Resolve(role, mode, grade string) Persona {
	role = strings.ToLower(strings.TrimSpace(role))
	r, ok := c.Roles[role]
	if !ok {
		role = RoleStudent
		r = c.Roles[RoleStudent]
	}

	mode = strings.ToLower(strings.TrimSpace(mode))
	m, ok := r.Modes[mode]
	if !ok {
		mode = ModeStandard
		m = r.Modes[ModeStandard]
	}

	grade = strings.ToUpper(strings.TrimSpace(grade))
	g, ok := m.Grades[grade]
	if !ok {
		grade = DefaultGrade
		g, ok = m.Grades[DefaultGrade]
		if !ok {
			for k, v := range m.Grades {
				grade, g = k, v
				break
			}
		}
	}

	intro := strings.NewReplacer(
		"{assistant}", c.AssistantName,
		"{name}", g.Name,
		"{grade}", grade,
	).Replace(m.Intro)

	return Persona{
		Role:              role,
		Mode:              mode,
		Grade:             grade,
		Name:              g.Name,
		Focus:             g.Focus,
		Intro:             intro,
		GradeRules:        g.Rules,
		ModeRules:         m.Rules,
		Tools:             m.Tools,
		EnforceSequential: m.EnforceSequential,
		HighQualityHint:   m.HighQualityHint,
	}
}
