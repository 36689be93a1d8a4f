package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/seamless/internal/display"
	"github.com/bnema/seamless/internal/ipc"
	"github.com/bnema/seamless/internal/mdns"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// newTable builds a table in the application style. Rows listed in
// highlight are rendered bold.
func newTable(highlight map[int]bool, headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(TableBorderStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case highlight[row]:
				return TableSelfStyle
			default:
				return TableCellStyle
			}
		})
}

func formatRect(r display.Rect) (pos, size string) {
	return fmt.Sprintf("%d,%d", r.X, r.Y), fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// MonitorTable lists local monitors.
func MonitorTable(rects []display.Rect) string {
	if len(rects) == 0 {
		return WarningStyle.Render("No monitors found")
	}
	t := newTable(nil, "ID", "Position", "Size")
	for _, r := range rects {
		pos, size := formatRect(r)
		t.Row(strconv.FormatUint(uint64(r.ID), 10), pos, size)
	}
	return t.Render()
}

// LayoutTable lists every machine of the shared desktop, left to right.
func LayoutTable(layout []ipc.ClientStatus) string {
	highlight := make(map[int]bool)
	t := newTable(highlight, "#", "Machine", "Displays", "Width")
	for i, c := range layout {
		name := c.Client
		if c.Self {
			name = IconSelf + " " + name
			highlight[i] = true
		}
		var displays []string
		width := 0
		for _, r := range c.Displays {
			_, size := formatRect(r)
			displays = append(displays, size)
			width += r.Width
		}
		t.Row(strconv.Itoa(i), name, strings.Join(displays, " "), strconv.Itoa(width))
	}
	return t.Render()
}

// PeerTable lists alive peers.
func PeerTable(peers []ipc.PeerStatus) string {
	if len(peers) == 0 {
		return SubtleStyle.Render("No peers")
	}
	t := newTable(nil, "Discovery", "Unicast", "Last seen")
	for _, p := range peers {
		seen := (time.Duration(p.LastSeenMs) * time.Millisecond).Round(10 * time.Millisecond)
		t.Row(p.Addr, p.Unicast, seen.String()+" ago")
	}
	return t.Render()
}

// StatusView renders everything a running node reports.
func StatusView(st ipc.Status) string {
	var b strings.Builder
	b.WriteString(HeaderStyle.Render("seamless"))
	b.WriteString("\n")

	address := st.Address
	if address == "" {
		address = WarningStyle.Render("unknown (no discovery echo yet)")
	}
	fmt.Fprintf(&b, "%s %s\n", SubtleStyle.Render("Identity:"), st.Identity)
	fmt.Fprintf(&b, "%s %s\n", SubtleStyle.Render("Address: "), address)
	fmt.Fprintf(&b, "%s %s\n", SubtleStyle.Render("Pointer: "), FormatStatus(st.State == "local", FormatState(st.State)))
	fmt.Fprintf(&b, "%s %d,%d\n", SubtleStyle.Render("Global:  "), st.X, st.Y)
	if len(st.HeldKeys) > 0 {
		fmt.Fprintf(&b, "%s %s\n", SubtleStyle.Render("Held:    "), strings.Join(st.HeldKeys, " "))
	}

	b.WriteString("\n")
	b.WriteString(SubheaderStyle.Render(IconNetwork + " Peers"))
	b.WriteString("\n")
	b.WriteString(PeerTable(st.Peers))
	b.WriteString("\n\n")
	b.WriteString(SubheaderStyle.Render(IconArrow + " Layout"))
	b.WriteString("\n")
	b.WriteString(LayoutTable(st.Layout))
	b.WriteString("\n")
	return b.String()
}

// InstanceTable lists nodes found over mDNS.
func InstanceTable(instances []mdns.Instance) string {
	if len(instances) == 0 {
		return SubtleStyle.Render("No instances found")
	}
	t := newTable(nil, "Instance", "Addresses", "Port", "Token")
	for _, inst := range instances {
		var addrs []string
		for _, a := range inst.Addrs {
			addrs = append(addrs, a.String())
		}
		t.Row(inst.Name, strings.Join(addrs, " "), strconv.Itoa(inst.Port), inst.Token)
	}
	return t.Render()
}
