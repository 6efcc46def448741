package collector

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ec-aaron/g292-z20/internal/cmdutils"
)

// NICInfo contains the network controllers found on the PCI bus.
type NICInfo struct {
	Cards []NICCard `json:"cards,omitempty"`
}

// NICCard is one physical network card. Dual port and dual personality cards
// expose several PCI functions behind the same slot, which are collapsed here:
// 01:00.0 and 01:00.1 are one physical card at 01:00.
type NICCard struct {
	Slot      string        `json:"slot"`
	Functions []NICFunction `json:"functions"`
}

// NICFunction is a single PCI function of a network card.
type NICFunction struct {
	Address     string `json:"address"`
	Class       string `json:"class"`
	ClassCode   string `json:"classCode"`
	Description string `json:"description"`
}

// MultiFunction reports whether the card exposes more than one PCI function.
func (c NICCard) MultiFunction() bool {
	return len(c.Functions) > 1
}

// HasClassCode reports whether any function of the card has the given PCI
// class code, such as 0200 for Ethernet or 0207 for Infiniband.
func (c NICCard) HasClassCode(code string) bool {
	for _, f := range c.Functions {
		if f.ClassCode == code {
			return true
		}
	}
	return false
}

// MatchesModel reports whether any function description contains the given
// substring, ignoring case.
func (c NICCard) MatchesModel(substr string) bool {
	for _, f := range c.Functions {
		if strings.Contains(strings.ToLower(f.Description), strings.ToLower(substr)) {
			return true
		}
	}
	return false
}

// bdfRegex matches the bus:device part and the function of a PCI address line.
// For example: "01:00.0 Infiniband controller [0207]: Mellanox ..." matches
// and has "01:00", "0", "Infiniband controller [0207]: Mellanox ...".
var bdfRegex = regexp.MustCompile(`^([0-9a-fA-F]{2}:[0-9a-fA-F]{2})\.([0-7])\s+(.+)$`)

// bdfDomainRegex is the fallback for lspci formats which print the PCI domain,
// such as "0000:01:00.0".
var bdfDomainRegex = regexp.MustCompile(`^[0-9a-fA-F]{4}:([0-9a-fA-F]{2}:[0-9a-fA-F]{2})\.([0-7])\s+(.+)$`)

// classCodeRegex extracts the numeric class code out of a class description
// such as "Ethernet controller [0200]".
var classCodeRegex = regexp.MustCompile(`\[([0-9a-fA-F]{4})\]$`)

// CollectNICs uses lspci to inventory network class PCI functions, grouped
// into physical cards.
func (c Collector) CollectNICs(ctx context.Context) (NICInfo, error) {
	stdout, stderr, err := cmdutils.RunWithTimeout(ctx, defaultTimeout, c.opts.lspciCmd[0], c.opts.lspciCmd[1:]...)
	if err != nil {
		return NICInfo{}, newCollectionError(c.opts.lspciCmd, stderr.String(), err)
	}
	if stderr.Len() > 0 {
		c.log.Info("lspci output to stderr", "stderr", stderr)
	}

	cards := map[string][]NICFunction{}
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		m := bdfRegex.FindStringSubmatch(line)
		if m == nil {
			m = bdfDomainRegex.FindStringSubmatch(line)
		}
		if m == nil {
			continue
		}
		slot, function, rest := m[1], m[2], m[3]

		class, description, _ := strings.Cut(rest, ":")
		class = strings.TrimSpace(class)

		cm := classCodeRegex.FindStringSubmatch(class)
		if cm == nil {
			c.log.Debug("PCI device has no class code, skipping", "line", line)
			continue
		}
		code := strings.ToLower(cm[1])

		// Network controllers are PCI class 02xx.
		if !strings.HasPrefix(code, "02") {
			continue
		}

		cards[slot] = append(cards[slot], NICFunction{
			Address:     fmt.Sprintf("%s.%s", slot, function),
			Class:       class,
			ClassCode:   code,
			Description: strings.TrimSpace(description),
		})
	}

	info := NICInfo{}
	slots := make([]string, 0, len(cards))
	for slot := range cards {
		slots = append(slots, slot)
	}
	sort.Strings(slots)

	for _, slot := range slots {
		info.Cards = append(info.Cards, NICCard{Slot: slot, Functions: cards[slot]})
	}

	return info, nil
}
