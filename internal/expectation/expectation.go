// Package expectation compares collected hardware facts against the
// operator's declared loadout.
//
// Every attribute a category can check always yields a verdict: pass or fail
// when it was checked, skipped when no expectation is configured for it, and
// error when an expectation is configured but the facts could not be
// collected. One category never influences another.
package expectation

// Outcome is the result of checking one attribute.
type Outcome string

// Verdict outcomes, ordered from best to worst for aggregation.
const (
	OutcomePass    Outcome = "pass"
	OutcomeFail    Outcome = "fail"
	OutcomeSkipped Outcome = "skipped"
	OutcomeError   Outcome = "error"
)

// Category is one independently checked hardware category.
type Category string

// Hardware categories.
const (
	CategoryCPU       Category = "cpu"
	CategoryMemory    Category = "memory"
	CategoryGPU       Category = "gpus"
	CategoryBandwidth Category = "nvbandwidth"
	CategoryNIC       Category = "nics"
	CategoryDisk      Category = "disks"
	CategoryFan       Category = "fans"
	CategoryWriteTest Category = "writetest"
)

// Categories returns all categories in their run order.
func Categories() []Category {
	return []Category{
		CategoryCPU,
		CategoryMemory,
		CategoryGPU,
		CategoryBandwidth,
		CategoryNIC,
		CategoryDisk,
		CategoryFan,
		CategoryWriteTest,
	}
}

// Verdict is the outcome of checking a single attribute of a category.
type Verdict struct {
	Category  Category `json:"category"`
	Attribute string   `json:"attribute"`
	Outcome   Outcome  `json:"outcome"`
	Expected  string   `json:"expected,omitempty"`
	Observed  string   `json:"observed,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// CategoryResult aggregates the verdicts of one category.
type CategoryResult struct {
	Category Category  `json:"category"`
	Verdicts []Verdict `json:"verdicts"`
}

// Outcome reduces the verdicts to one category outcome. Any fail makes the
// category fail; otherwise any error makes it error; a category is skipped
// only when every verdict was skipped.
func (r CategoryResult) Outcome() Outcome {
	anyError := false
	anyPass := false
	for _, v := range r.Verdicts {
		switch v.Outcome {
		case OutcomeFail:
			return OutcomeFail
		case OutcomeError:
			anyError = true
		case OutcomePass:
			anyPass = true
		}
	}

	if anyError {
		return OutcomeError
	}
	if anyPass {
		return OutcomePass
	}
	return OutcomeSkipped
}

// Blocking reports whether the category outcome should make the run exit
// non-zero.
func (r CategoryResult) Blocking() bool {
	o := r.Outcome()
	return o == OutcomeFail || o == OutcomeError
}
