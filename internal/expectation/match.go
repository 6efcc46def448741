package expectation

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ec-aaron/g292-z20/internal/collector"
)

const gib = 1024 * 1024 * 1024

// Matcher checks collected facts against one sanitized Profile.
type Matcher struct {
	log     *slog.Logger
	profile Profile
}

// New returns a Matcher for the given profile. The profile must have been
// sanitized.
func New(l *slog.Logger, p Profile) Matcher {
	return Matcher{log: l, profile: p}
}

func (m Matcher) skip(cat Category, attr string) Verdict {
	m.log.Debug("no expectation configured", "category", cat, "attribute", attr)
	return Verdict{Category: cat, Attribute: attr, Outcome: OutcomeSkipped, Message: "not configured"}
}

func (m Matcher) collectError(cat Category, attr string, err error) Verdict {
	return Verdict{Category: cat, Attribute: attr, Outcome: OutcomeError, Message: err.Error()}
}

// CPU checks the processor model.
func (m Matcher) CPU(info collector.CPUInfo, collectErr error) CategoryResult {
	r := CategoryResult{Category: CategoryCPU}

	mc := m.profile.CPU.ModelContains
	if mc == nil {
		r.Verdicts = append(r.Verdicts, m.skip(CategoryCPU, "model"))
		return r
	}
	if collectErr != nil {
		r.Verdicts = append(r.Verdicts, m.collectError(CategoryCPU, "model", collectErr))
		return r
	}

	v := Verdict{
		Category:  CategoryCPU,
		Attribute: "model",
		Outcome:   OutcomePass,
		Expected:  fmt.Sprintf("contains %q", *mc),
		Observed:  info.Model,
	}
	if !strings.Contains(info.Model, *mc) {
		v.Outcome = OutcomeFail
		v.Message = "model name does not contain the expected substring"
	}
	r.Verdicts = append(r.Verdicts, v)

	return r
}

// Memory checks the populated module count, per module capacity and speed.
func (m Matcher) Memory(info collector.MemoryInfo, collectErr error) CategoryResult {
	r := CategoryResult{Category: CategoryMemory}
	e := m.profile.Mem

	r.Verdicts = append(r.Verdicts, m.exactCount(CategoryMemory, "modules", e.DIMMsExpected, len(info.DIMMs), collectErr))

	switch {
	case e.PerDIMMGiB == nil:
		r.Verdicts = append(r.Verdicts, m.skip(CategoryMemory, "module size"))
	case collectErr != nil:
		r.Verdicts = append(r.Verdicts, m.collectError(CategoryMemory, "module size", collectErr))
	default:
		want, tol := *e.PerDIMMGiB, *e.SizeToleranceGiB
		v := Verdict{
			Category:  CategoryMemory,
			Attribute: "module size",
			Outcome:   OutcomePass,
			Expected:  fmt.Sprintf("within %s GiB of %s GiB", formatFloat(tol), formatFloat(want)),
			Observed:  fmt.Sprintf("%d modules in band", len(info.DIMMs)),
		}
		var offenders []string
		for _, d := range info.DIMMs {
			size := float64(d.SizeBytes) / gib
			if diff := size - want; diff < -tol || diff > tol {
				offenders = append(offenders, fmt.Sprintf("%s: %s GiB", d.Locator, formatFloat(size)))
			}
		}
		if len(offenders) > 0 {
			v.Outcome = OutcomeFail
			v.Observed = fmt.Sprintf("%d of %d modules out of band", len(offenders), len(info.DIMMs))
			v.Message = strings.Join(offenders, ", ")
		}
		r.Verdicts = append(r.Verdicts, v)
	}

	switch {
	case e.SpeedMHz == nil:
		r.Verdicts = append(r.Verdicts, m.skip(CategoryMemory, "speed"))
	case collectErr != nil:
		r.Verdicts = append(r.Verdicts, m.collectError(CategoryMemory, "speed", collectErr))
	default:
		floor := uint64(*e.SpeedMHz)
		v := Verdict{
			Category:  CategoryMemory,
			Attribute: "speed",
			Outcome:   OutcomePass,
			Expected:  fmt.Sprintf(">= %d MT/s", floor),
		}
		var offenders []string
		slowest := uint64(0)
		for i, d := range info.DIMMs {
			speed := d.OperatingSpeedMTs()
			if i == 0 || speed < slowest {
				slowest = speed
			}
			if speed < floor {
				offenders = append(offenders, fmt.Sprintf("%s: %d MT/s", d.Locator, speed))
			}
		}
		v.Observed = fmt.Sprintf("slowest module %d MT/s", slowest)
		if len(info.DIMMs) == 0 {
			v.Observed = "no modules"
		}
		if len(offenders) > 0 {
			v.Outcome = OutcomeFail
			v.Message = strings.Join(offenders, ", ")
		}
		r.Verdicts = append(r.Verdicts, v)
	}

	return r
}

// GPUs checks the card count and the PCIe link each card trained at.
func (m Matcher) GPUs(info collector.GPUInfo, collectErr error) CategoryResult {
	r := CategoryResult{Category: CategoryGPU}
	e := m.profile.GPUs

	r.Verdicts = append(r.Verdicts, m.exactCount(CategoryGPU, "count", e.ExpectCount, len(info.Cards), collectErr))

	switch {
	case e.MinLinkSpeedGTs == nil:
		r.Verdicts = append(r.Verdicts, m.skip(CategoryGPU, "link speed"))
	case collectErr != nil:
		r.Verdicts = append(r.Verdicts, m.collectError(CategoryGPU, "link speed", collectErr))
	default:
		floor := *e.MinLinkSpeedGTs
		v := Verdict{
			Category:  CategoryGPU,
			Attribute: "link speed",
			Outcome:   OutcomePass,
			Expected:  fmt.Sprintf(">= %s GT/s", formatFloat(floor)),
			Observed:  fmt.Sprintf("%d cards at or above", len(info.Cards)),
		}
		var offenders []string
		for _, g := range info.Cards {
			if g.LinkSpeedGTs < floor {
				offenders = append(offenders, fmt.Sprintf("%s: %s GT/s", g.Card, formatFloat(g.LinkSpeedGTs)))
			}
		}
		if len(offenders) > 0 {
			v.Outcome = OutcomeFail
			v.Observed = fmt.Sprintf("%d of %d cards below", len(offenders), len(info.Cards))
			v.Message = strings.Join(offenders, ", ")
		}
		r.Verdicts = append(r.Verdicts, v)
	}

	switch {
	case e.MinLinkWidth == nil:
		r.Verdicts = append(r.Verdicts, m.skip(CategoryGPU, "link width"))
	case collectErr != nil:
		r.Verdicts = append(r.Verdicts, m.collectError(CategoryGPU, "link width", collectErr))
	default:
		floor := uint64(*e.MinLinkWidth)
		v := Verdict{
			Category:  CategoryGPU,
			Attribute: "link width",
			Outcome:   OutcomePass,
			Expected:  fmt.Sprintf(">= x%d", floor),
			Observed:  fmt.Sprintf("%d cards at or above", len(info.Cards)),
		}
		var offenders []string
		for _, g := range info.Cards {
			if g.LinkWidth < floor {
				offenders = append(offenders, fmt.Sprintf("%s: x%d", g.Card, g.LinkWidth))
			}
		}
		if len(offenders) > 0 {
			v.Outcome = OutcomeFail
			v.Observed = fmt.Sprintf("%d of %d cards below", len(offenders), len(info.Cards))
			v.Message = strings.Join(offenders, ", ")
		}
		r.Verdicts = append(r.Verdicts, v)
	}

	return r
}

// Bandwidth checks the host to device memcpy floor of one benchmark run, the
// run's own status, and, when a GPU count is expected, that every GPU was
// measured.
func (m Matcher) Bandwidth(info collector.BandwidthInfo, collectErr error) CategoryResult {
	r := CategoryResult{Category: CategoryBandwidth}

	floorp := m.profile.Nvbandwidth.MinH2DGbps
	if floorp == nil {
		r.Verdicts = append(r.Verdicts, m.skip(CategoryBandwidth, "h2d bandwidth"))
		return r
	}
	if collectErr != nil {
		r.Verdicts = append(r.Verdicts, m.collectError(CategoryBandwidth, "h2d bandwidth", collectErr))
		return r
	}

	floor := *floorp
	v := Verdict{
		Category:  CategoryBandwidth,
		Attribute: "h2d bandwidth",
		Outcome:   OutcomePass,
		Expected:  fmt.Sprintf(">= %.2f GB/s", floor),
	}
	var offenders []string
	slowest := 0.0
	for i, val := range info.H2D {
		if i == 0 || val < slowest {
			slowest = val
		}
		if val < floor {
			offenders = append(offenders, fmt.Sprintf("gpu %d: %.2f GB/s", i, val))
		}
	}
	v.Observed = fmt.Sprintf("slowest %.2f GB/s across %d readings", slowest, len(info.H2D))
	if len(offenders) > 0 {
		v.Outcome = OutcomeFail
		v.Message = strings.Join(offenders, ", ")
	}
	r.Verdicts = append(r.Verdicts, v)

	status := Verdict{
		Category:  CategoryBandwidth,
		Attribute: "status",
		Outcome:   OutcomePass,
		Expected:  "passed",
		Observed:  info.Status,
	}
	if s := strings.ToLower(info.Status); s != "" && s != "passed" {
		status.Outcome = OutcomeFail
		status.Message = fmt.Sprintf("%s reported status %q", info.TestName, info.Status)
	}
	r.Verdicts = append(r.Verdicts, status)

	if exp := m.profile.GPUs.ExpectCount; exp != nil {
		cover := Verdict{
			Category:  CategoryBandwidth,
			Attribute: "gpu coverage",
			Outcome:   OutcomePass,
			Expected:  fmt.Sprintf("%d GPUs measured", *exp),
			Observed:  fmt.Sprintf("%d listed, %d readings", len(info.GPUs), len(info.H2D)),
		}
		if len(info.GPUs) != *exp || len(info.H2D) < *exp {
			cover.Outcome = OutcomeFail
			cover.Message = "benchmark did not cover every expected GPU"
		}
		r.Verdicts = append(r.Verdicts, cover)
	}

	return r
}

// NICs checks the physical card count and the Infiniband/Ethernet split.
// When a model substring is configured the counts apply to matching cards.
func (m Matcher) NICs(info collector.NICInfo, collectErr error) CategoryResult {
	r := CategoryResult{Category: CategoryNIC}
	e := m.profile.NICs

	cards := info.Cards
	if e.ModelContains != nil {
		cards = nil
		for _, c := range info.Cards {
			if c.MatchesModel(*e.ModelContains) {
				cards = append(cards, c)
			}
		}
	}

	slots := make([]string, 0, len(cards))
	for _, c := range cards {
		slots = append(slots, c.Slot)
	}

	count := func(attr string, expect *int, pred func(collector.NICCard) bool) {
		switch {
		case expect == nil:
			r.Verdicts = append(r.Verdicts, m.skip(CategoryNIC, attr))
			return
		case collectErr != nil:
			r.Verdicts = append(r.Verdicts, m.collectError(CategoryNIC, attr, collectErr))
			return
		}

		n := 0
		for _, c := range cards {
			if pred(c) {
				n++
			}
		}

		v := Verdict{
			Category:  CategoryNIC,
			Attribute: attr,
			Outcome:   OutcomePass,
			Expected:  fmt.Sprintf("= %d", *expect),
			Observed:  strconv.Itoa(n),
		}
		if n != *expect {
			v.Outcome = OutcomeFail
			v.Message = fmt.Sprintf("cards considered: %s", strings.Join(slots, ", "))
			if len(slots) == 0 {
				v.Message = "no matching cards found"
			}
		}
		r.Verdicts = append(r.Verdicts, v)
	}

	count("cards", e.ExpectCards, func(collector.NICCard) bool { return true })
	count("infiniband", e.ExpectInfiniband, func(c collector.NICCard) bool { return c.HasClassCode("0207") })
	count("ethernet", e.ExpectEthernet, func(c collector.NICCard) bool { return c.HasClassCode("0200") })

	return r
}

// Disks checks the target drive count and the presence of a boot drive in the
// configured capacity band.
func (m Matcher) Disks(info collector.DiskInfo, collectErr error) CategoryResult {
	r := CategoryResult{Category: CategoryDisk}
	e := m.profile.Disk

	switch {
	case e.ExpectCount == nil:
		r.Verdicts = append(r.Verdicts, m.skip(CategoryDisk, "target drives"))
	case collectErr != nil:
		r.Verdicts = append(r.Verdicts, m.collectError(CategoryDisk, "target drives", collectErr))
	default:
		matches := info.WithModel(*e.Model)
		v := Verdict{
			Category:  CategoryDisk,
			Attribute: "target drives",
			Outcome:   OutcomePass,
			Expected:  fmt.Sprintf("= %d %s", *e.ExpectCount, *e.Model),
			Observed:  strconv.Itoa(len(matches)),
		}
		if len(matches) != *e.ExpectCount {
			v.Outcome = OutcomeFail
			v.Message = fmt.Sprintf("inventory: %s", summarizeModels(info.Devices))
		}
		r.Verdicts = append(r.Verdicts, v)
	}

	switch {
	case e.BootDriveGB == nil:
		r.Verdicts = append(r.Verdicts, m.skip(CategoryDisk, "boot drive"))
	case collectErr != nil:
		r.Verdicts = append(r.Verdicts, m.collectError(CategoryDisk, "boot drive", collectErr))
	default:
		lo := *e.BootDriveGB - *e.BootDriveToleranceGB
		hi := *e.BootDriveGB + *e.BootDriveToleranceGB
		inBand := info.InCapacityBand(lo, hi)
		v := Verdict{
			Category:  CategoryDisk,
			Attribute: "boot drive",
			Outcome:   OutcomePass,
			Expected:  fmt.Sprintf(">= 1 drive between %s and %s GB", formatFloat(lo), formatFloat(hi)),
			Observed:  fmt.Sprintf("%d in band", len(inBand)),
		}
		if len(inBand) == 0 {
			v.Outcome = OutcomeFail
			v.Message = fmt.Sprintf("capacities seen: %s", summarizeCapacities(info.Devices))
		}
		r.Verdicts = append(r.Verdicts, v)
	}

	return r
}

// Fans checks that enough fans are healthy and spinning.
func (m Matcher) Fans(info collector.FanInfo, collectErr error) CategoryResult {
	r := CategoryResult{Category: CategoryFan}

	minp := m.profile.Fans.MinCount
	if minp == nil {
		r.Verdicts = append(r.Verdicts, m.skip(CategoryFan, "spinning"))
		return r
	}
	if collectErr != nil {
		r.Verdicts = append(r.Verdicts, m.collectError(CategoryFan, "spinning", collectErr))
		return r
	}

	spinning := info.SpinningCount()
	v := Verdict{
		Category:  CategoryFan,
		Attribute: "spinning",
		Outcome:   OutcomePass,
		Expected:  fmt.Sprintf(">= %d", *minp),
		Observed:  fmt.Sprintf("%d of %d sensors", spinning, len(info.Sensors)),
	}
	if spinning < *minp {
		v.Outcome = OutcomeFail
		var stopped []string
		for _, s := range info.Sensors {
			if !s.Spinning() {
				stopped = append(stopped, fmt.Sprintf("%s (%s, %d RPM)", s.Name, s.Status, s.RPM))
			}
		}
		v.Message = strings.Join(stopped, ", ")
	}
	r.Verdicts = append(r.Verdicts, v)

	return r
}

// exactCount builds the verdict for an exact integer equality attribute.
func (m Matcher) exactCount(cat Category, attr string, expect *int, observed int, collectErr error) Verdict {
	if expect == nil {
		return m.skip(cat, attr)
	}
	if collectErr != nil {
		return m.collectError(cat, attr, collectErr)
	}

	v := Verdict{
		Category:  cat,
		Attribute: attr,
		Outcome:   OutcomePass,
		Expected:  fmt.Sprintf("= %d", *expect),
		Observed:  strconv.Itoa(observed),
	}
	if observed != *expect {
		v.Outcome = OutcomeFail
	}
	return v
}

// formatFloat renders a float without trailing zeros.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func summarizeModels(devs []collector.NVMeDevice) string {
	if len(devs) == 0 {
		return "no NVMe devices"
	}
	counts := map[string]int{}
	var order []string
	for _, d := range devs {
		if _, ok := counts[d.Model]; !ok {
			order = append(order, d.Model)
		}
		counts[d.Model]++
	}
	parts := make([]string, 0, len(order))
	for _, model := range order {
		parts = append(parts, fmt.Sprintf("%dx %s", counts[model], model))
	}
	return strings.Join(parts, ", ")
}

func summarizeCapacities(devs []collector.NVMeDevice) string {
	if len(devs) == 0 {
		return "no NVMe devices"
	}
	parts := make([]string, 0, len(devs))
	for _, d := range devs {
		parts = append(parts, fmt.Sprintf("%.1f GB", d.SizeGB()))
	}
	return strings.Join(parts, ", ")
}
