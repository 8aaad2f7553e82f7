package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/alexbotov/dond/pkg/client"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Bold(true).
			Padding(0, 1)

	caseStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#FFD700")).
			Width(4).
			Align(lipgloss.Center)

	openedCaseStyle = caseStyle.
			BorderForeground(lipgloss.Color("#626262")).
			Foreground(lipgloss.Color("#626262"))

	selectedCaseStyle = caseStyle.
				BorderForeground(lipgloss.Color("#96CEB4")).
				Foreground(lipgloss.Color("#96CEB4")).
				Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFEAA7")).
			Width(14).
			Align(lipgloss.Right)

	goneValueStyle = valueStyle.
			Foreground(lipgloss.Color("#626262")).
			Strikethrough(true)

	offerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#96CEB4")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true)
)

// caseRows is the stage layout of case numbers
var caseRows = [][]int{
	{1, 2, 3, 4, 5, 6},
	{7, 8, 9, 10, 11, 12, 13},
	{14, 15, 16, 17, 18, 19, 20},
	{21, 22, 23, 24, 25, 26},
}

// formatMoney renders an amount with two decimals and thousands separators
func formatMoney(amount float64, currency string) string {
	s := decimal.NewFromFloat(amount).StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + "." + frac

	switch currency {
	case "USD", "":
		out = "$" + out
	case "EUR":
		out = "€" + out
	default:
		out = out + " " + currency
	}
	if neg {
		out = "-" + out
	}
	return out
}

// renderBoard draws the cases, the value ladder and the offer line
func renderBoard(state *client.State, currency string) string {
	if !state.GameStarted {
		return headerStyle.Render("DEAL OR NO DEAL") + "\n" + infoStyle.Render("No game in progress")
	}

	player := ""
	if state.PlayerName != nil {
		player = *state.PlayerName
	}
	header := headerStyle.Render(fmt.Sprintf("DEAL OR NO DEAL  %s  round %d  %s", player, state.RoundNumber, state.Phase))

	var rows []string
	for _, row := range caseRows {
		cells := make([]string, 0, len(row))
		for _, n := range row {
			id := strconv.Itoa(n)
			c, ok := state.Cases[id]
			switch {
			case !ok:
				continue
			case c.Selected:
				cells = append(cells, selectedCaseStyle.Render(id))
			case c.Opened:
				cells = append(cells, openedCaseStyle.Render("--"))
			default:
				cells = append(cells, caseStyle.Render(id))
			}
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	stage := lipgloss.JoinVertical(lipgloss.Center, rows...)

	ladder := renderLadder(state, currency)
	board := lipgloss.JoinHorizontal(lipgloss.Top, stage, "  ", ladder)

	lines := []string{header, board, renderStatus(state, currency)}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// renderLadder lists every value, struck through once its case is opened
func renderLadder(state *client.State, currency string) string {
	type entry struct {
		value float64
		gone  bool
	}
	entries := make([]entry, 0, len(state.Cases))
	for _, c := range state.Cases {
		entries = append(entries, entry{value: c.Value, gone: c.Opened})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].value < entries[j].value })

	half := (len(entries) + 1) / 2
	column := func(es []entry) string {
		lines := make([]string, 0, len(es))
		for _, e := range es {
			style := valueStyle
			if e.gone {
				style = goneValueStyle
			}
			lines = append(lines, style.Render(formatMoney(e.value, currency)))
		}
		return lipgloss.JoinVertical(lipgloss.Right, lines...)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, column(entries[:half]), column(entries[half:]))
}

func renderStatus(state *client.State, currency string) string {
	var parts []string

	if state.SelectedCase != nil {
		parts = append(parts, fmt.Sprintf("Your case: %s", *state.SelectedCase))
	}
	parts = append(parts, fmt.Sprintf("Cases left: %d", state.CasesRemaining))
	if state.CasesToOpen > 0 {
		parts = append(parts, fmt.Sprintf("Open %d more", state.CasesToOpen))
	}
	status := infoStyle.Render(strings.Join(parts, "  |  "))

	var offers []string
	if state.SuggestedOffer != nil {
		offers = append(offers, "Suggested "+formatMoney(*state.SuggestedOffer, currency))
	}
	if state.CurrentOffer != nil {
		offers = append(offers, "Banker offers "+formatMoney(*state.CurrentOffer, currency))
	}
	if len(offers) > 0 {
		status += "\n" + offerStyle.Render(strings.Join(offers, "  "))
	}

	if n := len(state.OfferHistory); n > 0 {
		history := make([]string, n)
		for i, o := range state.OfferHistory {
			history[i] = formatMoney(o.Amount, currency)
			if o.AutoGenerated {
				history[i] += "*"
			}
		}
		status += "\n" + infoStyle.Render("Offers: "+strings.Join(history, ", "))
	}

	return status
}

// renderNotice formats a one-line event notice
func renderNotice(event, detail string) string {
	if event == "error" {
		return errorStyle.Render("error: " + detail)
	}
	line := noticeStyle.Render("» " + strings.ReplaceAll(event, "_", " "))
	if detail != "" {
		line += " " + detail
	}
	return line
}

// describeNotice summarises a non-snapshot event payload
func describeNotice(ev *client.Event, currency string) string {
	switch ev.Type {
	case "suggest_offer":
		var p struct {
			SuggestedOffer float64 `json:"suggestedOffer"`
		}
		if err := json.Unmarshal(ev.Payload, &p); err == nil {
			return "banker suggests " + formatMoney(p.SuggestedOffer, currency)
		}
	case "game_over":
		var p struct {
			SelectedCase string  `json:"selectedCase"`
			Value        float64 `json:"value"`
		}
		if err := json.Unmarshal(ev.Payload, &p); err == nil {
			return fmt.Sprintf("case %s held %s", p.SelectedCase, formatMoney(p.Value, currency))
		}
	}
	return ""
}
