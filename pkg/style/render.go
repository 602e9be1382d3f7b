package style

import (
	"fmt"
	"strings"

	"github.com/tmm-manager/tmm/pkg/commands"
	"github.com/tmm-manager/tmm/pkg/types"
)

// RenderGames formats the registered game list.
func RenderGames(games []*types.Game) string {
	if len(games) == 0 {
		return MutedStyle.Render("no games registered")
	}
	var b strings.Builder
	for _, g := range games {
		line := fmt.Sprintf("%s  %s", TitleStyle.Render(g.ID), PathStyle.Render(g.InstallPath))
		if g.AppID != 0 {
			line += MutedStyle.Render(fmt.Sprintf("  (appid %d)", g.AppID))
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderLoadOrder formats a load order, one mod per line in priority
// order. Later lines override earlier ones.
func RenderLoadOrder(entries []types.LoadOrderEntry) string {
	if len(entries) == 0 {
		return MutedStyle.Render("no mods installed")
	}
	var b strings.Builder
	for i, e := range entries {
		indicator := EnabledIndicator
		name := ModStyle.Render(string(e.ModID))
		if !e.Enabled {
			indicator = DisabledIndicator
			name = MutedStyle.Render(string(e.ModID))
		}
		b.WriteString(fmt.Sprintf("%2d %s %s\n", i, indicator, name))
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderConflicts formats contested virtual paths with their winners
// and full shadow history.
func RenderConflicts(conflicts []*types.VirtualPathEntry) string {
	if len(conflicts) == 0 {
		return SuccessStyle.Render("no conflicts")
	}
	var b strings.Builder
	for _, c := range conflicts {
		b.WriteString(fmt.Sprintf("%s %s\n", ConflictIndicator, PathStyle.Render(c.Path)))
		b.WriteString(ListItemStyle.Render(
			fmt.Sprintf("winner: %s", ModStyle.Render(string(c.Winner)))) + "\n")
		for i := len(c.Shadowed) - 1; i >= 0; i-- {
			b.WriteString(ListItemStyle.Render(
				MutedStyle.Render(fmt.Sprintf("shadows: %s", c.Shadowed[i]))) + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderStatus formats a game's deployment state.
func RenderStatus(status *commands.GameStatus) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render(status.Game.Name) +
		MutedStyle.Render(fmt.Sprintf(" (%s)", status.Game.ID)) + "\n")
	b.WriteString(fmt.Sprintf("install: %s\n", PathStyle.Render(status.Game.InstallPath)))

	switch {
	case status.NeedsRecovery:
		b.WriteString(fmt.Sprintf("%s %s\n", RecoveryIndicator,
			ErrorStyle.Render("interrupted deployment, recovery needed")))
	case status.Deployed:
		b.WriteString(fmt.Sprintf("%s deployed (%s, batch %s)\n", DeployedIndicator,
			status.Batch.Technique, MutedStyle.Render(status.Batch.BatchID)))
	default:
		b.WriteString(MutedStyle.Render("not deployed") + "\n")
	}

	b.WriteString("\n" + TitleStyle.Render("load order") + "\n")
	b.WriteString(RenderLoadOrder(status.Order) + "\n")

	if len(status.Conflicts) > 0 {
		b.WriteString("\n" + TitleStyle.Render("conflicts") + "\n")
		b.WriteString(RenderConflicts(status.Conflicts) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderDeployResult summarizes a completed deploy, or lists the
// planned operations of a dry run.
func RenderDeployResult(res *types.DeployResult) string {
	if res.DryRun {
		var b strings.Builder
		b.WriteString(TitleStyle.Render("dry run") +
			fmt.Sprintf(" would place %d files (%d originals displaced) via %s\n",
				res.Placed, res.Displaced, res.Technique))
		for _, op := range res.Operations {
			switch op.Kind {
			case types.OpBackupOriginal:
				b.WriteString(ListItemStyle.Render(
					MutedStyle.Render(fmt.Sprintf("backup %s", op.RelPath))) + "\n")
			case types.OpPlace:
				b.WriteString(ListItemStyle.Render(fmt.Sprintf("place %s %s",
					PathStyle.Render(op.RelPath),
					MutedStyle.Render(fmt.Sprintf("(from %s)", op.ModID)))) + "\n")
			}
		}
		return strings.TrimRight(b.String(), "\n")
	}
	return fmt.Sprintf("%s placed %d files (%d originals displaced) via %s",
		SuccessStyle.Render("deployed:"), res.Placed, res.Displaced, res.Technique)
}

// RenderUndeployResult summarizes a completed undeploy.
func RenderUndeployResult(res *types.UndeployResult) string {
	if res.NoOp {
		return MutedStyle.Render("nothing deployed")
	}
	return fmt.Sprintf("%s removed %d files, restored %d originals",
		SuccessStyle.Render("undeployed:"), res.Removed, res.Restored)
}
