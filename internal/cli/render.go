package cli

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/ChuLiYu/decision-engine/internal/planner"
	"github.com/ChuLiYu/decision-engine/internal/policystore"
	"github.com/ChuLiYu/decision-engine/internal/worker"
	"github.com/ChuLiYu/decision-engine/pkg/types"
)

var (
	colorAccent = lipgloss.Color("#20B9B4")
	colorWarn   = lipgloss.Color("#F4D03F")
	colorError  = lipgloss.Color("#E74C3C")
	colorMuted  = lipgloss.Color("#2C4A54")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	warnStyle   = lipgloss.NewStyle().Foreground(colorWarn)
	errorStyle  = lipgloss.NewStyle().Foreground(colorError)
	borderStyle = lipgloss.NewStyle().Foreground(colorMuted)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...)
}

func formatValue(v float64) string {
	if math.IsInf(v, -1) {
		return "-inf"
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func renderTrain(w io.Writer, r planner.TrainResult) {
	fmt.Fprintln(w, titleStyle.Render("Policy "+r.Ref.String()))
	t := newTable("state", "action", "value")
	for s, a := range r.Policy {
		t.Row(strconv.Itoa(s), strconv.Itoa(a), formatValue(r.Values[s]))
	}
	fmt.Fprintln(w, t.String())

	status := fmt.Sprintf("converged after %d iterations", r.Iterations)
	if !r.Converged {
		status = warnStyle.Render(fmt.Sprintf("not converged after %d iterations", r.Iterations))
	}
	fmt.Fprintf(w, "%s  %s\n", status, mutedStyle.Render("run "+r.RunID))
}

func renderPlan(w io.Writer, r planner.PlanResult) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Plan %s  T=%d", r.Ref.String(), r.Plan.Horizon())))

	infeasible := make(map[int]bool, len(r.Plan.Infeasible))
	for _, t := range r.Plan.Infeasible {
		infeasible[t] = true
	}

	tbl := newTable("t", "decision", "V[t]", "status")
	for t := 0; t < r.Plan.Horizon(); t++ {
		decision, status := "-", "ok"
		if d, ok := r.Plan.Decision(t); ok {
			decision = d.String()
		} else if infeasible[t] {
			status = errorStyle.Render("infeasible")
		} else {
			status = warnStyle.Render("no decision")
		}
		tbl.Row(strconv.Itoa(t), decision, formatValue(r.Plan.Values[t]), status)
	}
	fmt.Fprintln(w, tbl.String())

	fmt.Fprintf(w, "value %s  evaluated %d  pruned %d  samples %d\n",
		formatValue(r.Plan.Value), r.Plan.Stats.Evaluated, r.Plan.Stats.Pruned, r.Plan.Stats.Samples)
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("policy %v  constraints %s  run %s  %s",
		[]int(r.Policy), strings.Join(r.Constraints, ","), r.RunID, r.Duration)))
}

func renderBatch(w io.Writer, tasks []worker.Task, results []worker.Result) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Batch of %d scenarios", len(tasks))))

	tbl := newTable("scenario", "T", "J", "seed", "value", "first decision", "status")
	for i, r := range results {
		req := tasks[i].Request
		value, first, status := "-", "-", "ok"
		if r.Success() {
			value = formatValue(r.Plan.Plan.Value)
			if d, ok := r.Plan.Plan.Decision(0); ok {
				first = d.String()
			}
			if !r.Plan.Plan.Feasible() {
				status = warnStyle.Render(fmt.Sprintf("infeasible %v", r.Plan.Plan.Infeasible))
			}
		} else {
			status = errorStyle.Render(r.Error.Error())
		}
		tbl.Row(r.TaskID, strconv.Itoa(req.Horizon), strconv.Itoa(req.JobCount),
			strconv.FormatUint(req.Seed, 10), value, first, status)
	}
	fmt.Fprintln(w, tbl.String())
}

func renderPolicy(w io.Writer, ref policystore.Ref, p types.Policy) {
	fmt.Fprintln(w, titleStyle.Render("Policy "+ref.String()))
	tbl := newTable("state", "action")
	for s, a := range p {
		tbl.Row(strconv.Itoa(s), strconv.Itoa(a))
	}
	fmt.Fprintln(w, tbl.String())
}

func renderVersions(w io.Writer, ref policystore.Ref, versions []int) {
	ref.Version = 0
	fmt.Fprintln(w, titleStyle.Render("Versions of "+ref.String()))
	if len(versions) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no live versions"))
		return
	}
	parts := make([]string, len(versions))
	for i, v := range versions {
		parts[i] = "v" + strconv.Itoa(v)
	}
	fmt.Fprintln(w, strings.Join(parts, " "))
}
