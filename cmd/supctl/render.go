package main

import (
	"fmt"

	"github.com/danmuck/supctl/internal/protocol/ctl"
	"github.com/danmuck/supctl/internal/ui"
)

const statusRow = "%-44s %-8s %-8s %-12s %s\n"

func renderStatus(u *ui.UI, color ui.Color, rows []ctl.ServiceStatus) {
	if len(rows) == 0 {
		u.Printf("No services loaded.\n")
		return
	}
	u.Printf(statusRow, "package", "desired", "state", "elapsed (s)", "pid")
	for _, r := range rows {
		pid := "<none>"
		if r.Pid != 0 {
			pid = fmt.Sprint(r.Pid)
		}
		u.Printf("%-44s %-8s ", r.Ident, r.DesiredState)
		u.Colorf(color, "%-8s", r.State)
		u.Printf(" %-12d %s\n", r.ElapsedSecs, pid)
	}
}
