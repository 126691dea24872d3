// Package policy gates what an autonomous companion may do with
// automation rules. It is a miniature policy-decision engine: pure,
// total, and side-effect-free. There is no error state, only a denial
// with an explanatory reason.
//
// Policy is evaluated at rule creation and toggle time by the
// companion-facing layer, never per firing: enablement is already
// policy-checked before a rule can fire at all.
package policy

import (
	"fmt"

	"github.com/c360/forge/types"
)

// RiskTier is the fixed classification of how consequential an action
// type is.
type RiskTier string

// Risk tiers, ordered from least to most consequential.
const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

func (r RiskTier) String() string { return string(r) }

// TrustLevel is an ordinal 0-4 describing how much unsupervised authority
// the companion has earned. 0 grants none; 4 ("sovereign") may auto-enable
// anything below high risk.
type TrustLevel int

// Trust thresholds used by the decision branches below.
const (
	// TrustDraft is the minimum level at which the companion may draft
	// rules for human approval.
	TrustDraft TrustLevel = 2
	// TrustEnableLow is the minimum level at which low-risk rules may be
	// auto-enabled.
	TrustEnableLow TrustLevel = 3
	// TrustSovereign may auto-enable low and medium risk rules.
	TrustSovereign TrustLevel = 4
)

// Intent describes what the companion is attempting with a rule,
// independent of any specific event.
type Intent string

// Companion intents.
const (
	IntentSuggest Intent = "suggest"
	IntentDraft   Intent = "draft"
	IntentEnable  Intent = "enable"
)

// Valid reports whether i is a member of the closed intent set.
func (i Intent) Valid() bool {
	switch i {
	case IntentSuggest, IntentDraft, IntentEnable:
		return true
	default:
		return false
	}
}

func (i Intent) String() string { return string(i) }

// actionRisk is the closed risk table. It is not user-configurable.
var actionRisk = map[types.ActionType]RiskTier{
	types.ActionQueueQuest:       RiskLow,
	types.ActionSendNotification: RiskLow,
	types.ActionUpdateSkill:      RiskMedium,
	types.ActionLogToVault:       RiskMedium,
	types.ActionTriggerCompanion: RiskMedium,
	types.ActionRunScript:        RiskHigh,
}

// RiskFor returns the fixed risk tier for an action type. Unknown action
// types are treated as high risk so the policy fails closed.
func RiskFor(action types.ActionType) RiskTier {
	if risk, ok := actionRisk[action]; ok {
		return risk
	}
	return RiskHigh
}

// Decision is the outcome of a policy evaluation. Reason documents which
// branch fired, for audit and UI display.
type Decision struct {
	Allowed          bool     `json:"allowed"`
	Risk             RiskTier `json:"risk"`
	RequiresApproval bool     `json:"requires_approval"`
	Reason           string   `json:"reason"`
}

// Evaluate decides whether a companion at the given trust level may carry
// out intent for a rule of the given action type.
//
//   - suggest is always allowed: proposing an idea costs nothing.
//   - draft requires trust >= 2 and never covers high-risk actions; even
//     an allowed draft requires human approval before enablement.
//   - enable never covers high-risk actions at any trust level; trust 4
//     auto-enables low/medium risk, trust 3 auto-enables low risk only.
func Evaluate(trust TrustLevel, action types.ActionType, intent Intent) Decision {
	risk := RiskFor(action)

	switch intent {
	case IntentSuggest:
		return Decision{
			Allowed: true,
			Risk:    risk,
			Reason:  "companions may always suggest automations",
		}

	case IntentDraft:
		if trust < TrustDraft {
			return Decision{
				Risk:             risk,
				RequiresApproval: true,
				Reason: fmt.Sprintf("trust level %d is below %d required to draft rules",
					trust, TrustDraft),
			}
		}
		if risk == RiskHigh {
			return Decision{
				Risk:             risk,
				RequiresApproval: true,
				Reason:           fmt.Sprintf("%s actions are high risk and can never be auto-drafted", action),
			}
		}
		return Decision{
			Allowed:          true,
			Risk:             risk,
			RequiresApproval: true,
			Reason:           "draft permitted; human approval required before enablement",
		}

	case IntentEnable:
		if risk == RiskHigh {
			return Decision{
				Risk:             risk,
				RequiresApproval: true,
				Reason:           fmt.Sprintf("%s actions are high risk and can never be auto-enabled", action),
			}
		}
		if trust >= TrustSovereign {
			return Decision{
				Allowed: true,
				Risk:    risk,
				Reason:  fmt.Sprintf("sovereign trust level %d may auto-enable %s risk actions", trust, risk),
			}
		}
		if trust >= TrustEnableLow && risk == RiskLow {
			return Decision{
				Allowed: true,
				Risk:    risk,
				Reason:  fmt.Sprintf("trust level %d may auto-enable low risk actions", trust),
			}
		}
		return Decision{
			Risk:             risk,
			RequiresApproval: true,
			Reason: fmt.Sprintf("trust level %d may not auto-enable %s risk actions",
				trust, risk),
		}

	default:
		// Unknown intents fail closed; the evaluator stays total.
		return Decision{
			Risk:             risk,
			RequiresApproval: true,
			Reason:           fmt.Sprintf("unknown intent %q", intent),
		}
	}
}
