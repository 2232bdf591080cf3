package verify

import (
	"fmt"
	"regexp"

	"github.com/forgehq/sidecar/pkg/models"
)

// evalPattern runs a case-sensitive regex over resultBody. PatternMatch
// requires a match; PatternReject requires the absence of one. An invalid
// regex yields warn carrying the compile error, per §4.4.
func evalPattern(spec Spec, resultBody string) EvalResult {
	re, err := regexp.Compile(spec.Pattern)
	if err != nil {
		return EvalResult{Outcome: models.OutcomeWarn, Message: fmt.Sprintf("invalid pattern: %v", err)}
	}

	matched := re.MatchString(resultBody)
	violated := (spec.PatternMode == PatternReject && matched) ||
		(spec.PatternMode == PatternMatch && !matched)
	if !violated {
		return EvalResult{Outcome: models.OutcomePass}
	}

	outcome := spec.FailOutcome
	if outcome == "" {
		outcome = models.OutcomeWarn
	}
	message := fmt.Sprintf("pattern %q %s requirement violated", spec.Pattern, spec.PatternMode)
	return EvalResult{Outcome: outcome, Message: message}
}
