package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"

	"organiflow/api/internal/hierarchy"
	"organiflow/api/internal/orgsync"
)

var (
	nameStyle  = lipgloss.NewStyle().Bold(true)
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	idStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14")) // cyan
	movedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	mutedStyle = lipgloss.NewStyle().Faint(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// renderForest draws the forest with rounded connectors. Records whose ids
// are in moved are highlighted.
func renderForest(forest hierarchy.Forest, moved map[int64]bool) string {
	if len(forest) == 0 {
		return mutedStyle.Render("(no employees)")
	}
	var blocks []string
	for _, root := range forest {
		blocks = append(blocks, subtree(root, moved).String())
	}
	return strings.Join(blocks, "\n")
}

func subtree(n *hierarchy.Node, moved map[int64]bool) *tree.Tree {
	t := tree.Root(nodeLabel(n.Record, moved[n.Record.ID])).
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(mutedStyle)
	for _, child := range n.Children {
		if len(child.Children) == 0 {
			t.Child(nodeLabel(child.Record, moved[child.Record.ID]))
			continue
		}
		t.Child(subtree(child, moved))
	}
	return t
}

func nodeLabel(e hierarchy.Employee, moved bool) string {
	name := nameStyle.Render(e.Name)
	if moved {
		name = movedStyle.Render(e.Name + " *")
	}
	label := name + " " + idStyle.Render(fmt.Sprintf("#%d", e.ID))
	if e.Title != "" {
		label += " " + titleStyle.Render(e.Title)
	}
	return label
}

func renderFlatRecord(e hierarchy.Employee) string {
	manager := "-"
	if e.ManagerID != nil {
		manager = fmt.Sprintf("%d", *e.ManagerID)
	}
	order := "-"
	if e.Order != nil {
		order = fmt.Sprintf("%d", *e.Order)
	}
	return fmt.Sprintf("%s\t%s\tmanager=%s\torder=%s", idStyle.Render(fmt.Sprintf("#%d", e.ID)), e.Name, manager, order)
}

// printerNotifier shows gesture notifications as single status lines.
type printerNotifier struct {
	w io.Writer
}

func newPrinterNotifier(w io.Writer) orgsync.Notifier {
	return printerNotifier{w: w}
}

func (p printerNotifier) Notify(n orgsync.Notification) {
	style := mutedStyle
	switch n.Kind {
	case orgsync.KindSuccess:
		style = movedStyle
	case orgsync.KindFailure:
		style = errorStyle
	case orgsync.KindRejected:
		style = warnStyle
	}
	fmt.Fprintln(p.w, style.Render(n.Message))
}
