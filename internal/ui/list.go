package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/vidpub/internal/models"
)

var _ list.Item = jobItem{}

// jobItem wraps [models.Job] to implement [list.Item].
type jobItem struct {
	job *models.Job
}

func (i jobItem) FilterValue() string { return i.job.Title }
func (i jobItem) Title() string       { return i.job.Title }
func (i jobItem) Description() string {
	platforms := make([]string, 0, len(i.job.Targets))
	for _, t := range i.job.Targets {
		platforms = append(platforms, string(t.Platform))
	}

	desc := fmt.Sprintf("%s • %s", i.job.State(), i.job.Kind)
	if len(platforms) > 0 {
		desc = fmt.Sprintf("%s • %s", desc, strings.Join(platforms, ", "))
	}
	return desc
}

func jobItems(jobs []*models.Job) []list.Item {
	items := make([]list.Item, len(jobs))
	for i, job := range jobs {
		items[i] = jobItem{job: job}
	}
	return items
}
