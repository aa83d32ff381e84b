// Package hackathon provides the static catalog of monthly developer
// hackathon submissions.
package hackathon

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed projects.toml
var defaultProjects []byte

// Project is one hackathon submission.
type Project struct {
	Category    string `toml:"category" json:"category,omitempty"`
	Username    string `toml:"username" json:"username"`
	ProjectName string `toml:"project_name" json:"projectName"`
	RepoURL     string `toml:"repo_url" json:"repoUrl"`
	Description string `toml:"description" json:"description"`
	Prize       string `toml:"prize" json:"prize"`
	DemoURL     string `toml:"demo_url" json:"demoUrl,omitempty"`
	VideoURL    string `toml:"video_url" json:"videoUrl,omitempty"`
}

// AvatarURL returns the GitHub avatar of the submitter.
func (p Project) AvatarURL() string {
	return "https://github.com/" + p.Username + ".png"
}

// Season is one monthly hackathon round.
type Season struct {
	ID       string    `toml:"id" json:"id"`
	Label    string    `toml:"label" json:"label"`
	Projects []Project `toml:"project" json:"projects"`
}

// Upcoming reports whether the season has no published results yet.
func (s Season) Upcoming() bool {
	return len(s.Projects) == 0
}

// Catalog is the ordered list of seasons, oldest first.
type Catalog struct {
	Seasons []Season `toml:"season"`
}

// Load decodes a catalog from TOML.
func Load(r io.Reader) (*Catalog, error) {
	var c Catalog
	if _, err := toml.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode hackathon catalog: %w", err)
	}
	if len(c.Seasons) == 0 {
		return nil, fmt.Errorf("hackathon catalog has no seasons")
	}
	seen := make(map[string]bool, len(c.Seasons))
	for _, s := range c.Seasons {
		if s.ID == "" {
			return nil, fmt.Errorf("hackathon season without id")
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("duplicate hackathon season %q", s.ID)
		}
		seen[s.ID] = true
	}
	return &c, nil
}

// LoadFile decodes a catalog from a TOML file.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open hackathon catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Default returns the bundled catalog.
func Default() *Catalog {
	c, err := Load(bytes.NewReader(defaultProjects))
	if err != nil {
		panic(fmt.Sprintf("bundled hackathon catalog: %v", err))
	}
	return c
}

// Season returns the season with the given id.
func (c *Catalog) Season(id string) (Season, bool) {
	for _, s := range c.Seasons {
		if s.ID == id {
			return s, true
		}
	}
	return Season{}, false
}

// Latest returns the most recent season, which may be upcoming.
func (c *Catalog) Latest() Season {
	return c.Seasons[len(c.Seasons)-1]
}

// Filter returns the projects whose username or project name contains query,
// case-insensitively. An empty query returns every project.
func Filter(projects []Project, query string) []Project {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return projects
	}
	var out []Project
	for _, p := range projects {
		if strings.Contains(strings.ToLower(p.Username), q) ||
			strings.Contains(strings.ToLower(p.ProjectName), q) {
			out = append(out, p)
		}
	}
	return out
}

// Group is a set of projects sharing a category. Category is empty for
// uncategorized projects.
type Group struct {
	Category string    `json:"category"`
	Projects []Project `json:"projects"`
}

// GroupByCategory groups projects by category, keeping categories in
// first-seen order. Uncategorized projects form one group with an empty
// category, placed last.
func GroupByCategory(projects []Project) []Group {
	var groups []Group
	index := make(map[string]int)
	var uncategorized []Project

	for _, p := range projects {
		if p.Category == "" {
			uncategorized = append(uncategorized, p)
			continue
		}
		i, ok := index[p.Category]
		if !ok {
			i = len(groups)
			index[p.Category] = i
			groups = append(groups, Group{Category: p.Category})
		}
		groups[i].Projects = append(groups[i].Projects, p)
	}

	if len(uncategorized) > 0 {
		groups = append(groups, Group{Projects: uncategorized})
	}
	return groups
}
