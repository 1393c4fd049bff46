package notify

import (
	_ "embed"
	"fmt"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/gomoderate/pkg/render"
)

//go:embed templates.yaml
var defaultTemplatesYAML []byte

// Field is one name/value row of an embed.
type Field struct {
	Name   string `yaml:"name" json:"name"`
	Value  string `yaml:"value" json:"value"`
	Inline bool   `yaml:"inline" json:"inline"`
}

// Embed is a chat-application card. Text fields may hold placeholders.
type Embed struct {
	Author      string  `yaml:"author" json:"author,omitempty"`
	Title       string  `yaml:"title" json:"title,omitempty"`
	Description string  `yaml:"description" json:"description,omitempty"`
	Color       string  `yaml:"color" json:"color"`
	Fields      []Field `yaml:"fields" json:"fields,omitempty"`
	Footer      string  `yaml:"footer" json:"footer,omitempty"`
}

// Routing is the notify section of the config file.
type Routing struct {
	Channels map[string]string `yaml:"channels"` // category -> channel id; "" or "0" disables
	Embeds   map[string]Embed  `yaml:"embeds"`   // template key -> embed
}

// DefaultRouting returns the embedded default embeds with no channels set.
func DefaultRouting() (Routing, error) {
	var r Routing
	if err := yaml.Unmarshal(defaultTemplatesYAML, &r); err != nil {
		return Routing{}, fmt.Errorf("notify: parse default templates: %w", err)
	}
	return r, nil
}

// Catalog holds the active routing. It is swapped wholesale on reload.
type Catalog struct {
	routing atomic.Pointer[Routing]
}

// NewCatalog builds a catalog from r, filling missing embeds from defaults.
func NewCatalog(r Routing) (*Catalog, error) {
	c := &Catalog{}
	if err := c.Replace(r); err != nil {
		return nil, err
	}
	return c, nil
}

// Replace swaps the routing.
func (c *Catalog) Replace(r Routing) error {
	defaults, err := DefaultRouting()
	if err != nil {
		return err
	}
	merged := Routing{
		Channels: make(map[string]string, len(r.Channels)),
		Embeds:   make(map[string]Embed, len(defaults.Embeds)+len(r.Embeds)),
	}
	for k, v := range defaults.Channels {
		merged.Channels[k] = v
	}
	for k, v := range r.Channels {
		merged.Channels[k] = v
	}
	for k, v := range defaults.Embeds {
		merged.Embeds[k] = v
	}
	for k, v := range r.Embeds {
		merged.Embeds[k] = v
	}
	c.routing.Store(&merged)
	return nil
}

// Channel returns the channel id for category, or "" if disabled.
func (c *Catalog) Channel(category string) string {
	id := strings.TrimSpace(c.routing.Load().Channels[category])
	if id == "0" {
		return ""
	}
	return id
}

// Render fills the event's template. ok is false when no template exists.
func (c *Catalog) Render(ev Event) (Embed, bool) {
	tpl, ok := c.routing.Load().Embeds[ev.Template]
	if !ok {
		return Embed{}, false
	}
	out := Embed{
		Author:      render.Apply(tpl.Author, ev.Placeholders),
		Title:       render.Apply(tpl.Title, ev.Placeholders),
		Description: render.Apply(tpl.Description, ev.Placeholders),
		Color:       tpl.Color,
		Footer:      render.Apply(tpl.Footer, ev.Placeholders),
	}
	if out.Color == "" {
		out.Color = "#FFFFFF"
	}
	for _, f := range tpl.Fields {
		out.Fields = append(out.Fields, Field{
			Name:   render.Apply(f.Name, ev.Placeholders),
			Value:  render.Apply(f.Value, ev.Placeholders),
			Inline: f.Inline,
		})
	}
	return out, true
}
