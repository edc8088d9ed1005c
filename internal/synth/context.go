package synth

import (
	"encoding/json"
	"sort"

	"github.com/ShayCichocki/wayfinder/pkg/models"
)

type formattedItem struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type formattedView struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Links       []formattedItem `json:"links"`
	Actions     []formattedItem `json:"actions"`
	Components  []formattedView `json:"components,omitempty"`
}

func formatView(v models.View) formattedView {
	fv := formattedView{
		Name:        v.Name,
		Description: v.Description,
		Links:       make([]formattedItem, 0, len(v.ClickableLinks)),
		Actions:     make([]formattedItem, 0, len(v.Actions)),
	}
	for _, l := range v.ClickableLinks {
		fv.Links = append(fv.Links, formattedItem{Name: l.Name, Description: l.Description})
	}
	for _, a := range v.Actions {
		fv.Actions = append(fv.Actions, formattedItem{Name: a.Label, Description: a.Description})
	}
	keys := make([]string, 0, len(v.Children))
	for k := range v.Children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, child := range v.Children[k] {
			fv.Components = append(fv.Components, formatView(child))
		}
	}
	return fv
}

// FormatViews renders the open windows' views as indented JSON.
func FormatViews(windows []models.Window) string {
	views := make([]formattedView, 0, len(windows))
	for _, w := range windows {
		views = append(views, formatView(w.View))
	}
	data, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(data)
}
