package main

import (
	"context"

	"github.com/desertthunder/vidpub/internal/formatter"
	"github.com/urfave/cli/v3"
)

type accountStatus struct {
	Platform string `json:"platform"`
	ID       string `json:"id"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Default  bool   `json:"default"`
}

// AccountsValidate prints every account's status. Unusable accounts are informational;
// only a file that cannot be parsed fails the command.
func (r *Runner) AccountsValidate(ctx context.Context, cmd *cli.Command) error {
	reg, err := r.loadAccounts()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		statuses := []accountStatus{}
		for _, spec := range reg.All() {
			statuses = append(statuses, accountStatus{
				Platform: string(spec.Platform),
				ID:       spec.ID,
				Status:   string(spec.Status),
				Message:  spec.Message,
				Default:  spec.Default,
			})
		}
		return r.writeJSON(statuses, true)
	}

	return r.writeBytes(formatter.AccountsReport(reg))
}
