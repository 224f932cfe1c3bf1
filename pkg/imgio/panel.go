package imgio

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// PanelChannel is one row of the panel: a channel name and whether the
// channel feeds the pixel classifier.
type PanelChannel struct {
	Name    string
	Ilastik bool
}

// Panel describes the acquisition channels in order.
type Panel struct {
	Channels []PanelChannel
}

// Names returns all channel names in panel order.
func (p *Panel) Names() []string {
	names := make([]string, len(p.Channels))
	for i, c := range p.Channels {
		names[i] = c.Name
	}
	return names
}

// ReadPanel parses a panel CSV. The "name" column is required; the
// optional "ilastik" column holds 0/1 flags and defaults to false.
func ReadPanel(path string) (*Panel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open panel %s: %w", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse panel %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("panel %s is empty", path)
	}

	nameCol, ilastikCol := -1, -1
	for i, col := range records[0] {
		switch strings.TrimSpace(col) {
		case "name":
			nameCol = i
		case "ilastik":
			ilastikCol = i
		}
	}
	if nameCol < 0 {
		return nil, fmt.Errorf("panel %s: missing required column %q", path, "name")
	}

	panel := &Panel{}
	for line, rec := range records[1:] {
		name := strings.TrimSpace(rec[nameCol])
		if name == "" {
			return nil, fmt.Errorf("panel %s: empty channel name on line %d", path, line+2)
		}
		ch := PanelChannel{Name: name}
		if ilastikCol >= 0 && ilastikCol < len(rec) {
			ch.Ilastik = strings.TrimSpace(rec[ilastikCol]) == "1"
		}
		panel.Channels = append(panel.Channels, ch)
	}
	return panel, nil
}
