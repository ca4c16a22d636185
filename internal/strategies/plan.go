/*

This file contains the per-protocol strategy builders. Each strategy
(open/adjust/close, for every protocol) is a thin wrapper around the same
simulated transition: the builders only sequence protocol actions, every
amount comes from the engine's output.

*/

package strategies

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/oasisdex/earn-engine/internal/logger"
	"github.com/oasisdex/earn-engine/internal/types"
)

var (
	ErrEmptyTransition = errors.New("transition carries no work to plan")

	planLogger = logger.GetForComponent("strategy_planner")
)

// StepKind defines the low-level protocol operations a plan is made of.
type StepKind string

const (
	StepFlashloanTake  StepKind = "FLASHLOAN_TAKE"
	StepDeposit        StepKind = "DEPOSIT"
	StepBorrow         StepKind = "BORROW"
	StepSwap           StepKind = "SWAP"
	StepRepay          StepKind = "REPAY"
	StepWithdraw       StepKind = "WITHDRAW"
	StepFlashloanRepay StepKind = "FLASHLOAN_REPAY"
)

// Step is a single executable action in a plan.
type Step struct {
	Kind   StepKind    `json:"kind"`
	Token  types.Token `json:"token"`
	Amount sdkmath.Int `json:"amount"`

	// Swap-only fields: the output side and the on-chain minimum-receive
	// guard, taken from the transition's pessimistic leg.
	TokenOut     types.Token `json:"token_out,omitempty"`
	MinAmountOut sdkmath.Int `json:"min_amount_out,omitempty"`
}

// ActionPlan is an ordered sequence of steps achieving one transition on one
// protocol.
type ActionPlan struct {
	GoalDescription string             `json:"goal_description"`
	Protocol        types.ProtocolKind `json:"protocol"`
	Steps           []Step             `json:"steps"`
}

// BuildOpen plans opening a fresh leveraged position from a transition.
func BuildOpen(protocol types.ProtocolKind, transition types.SimulatedTransition) (ActionPlan, error) {
	return buildPlan(protocol, transition, fmt.Sprintf("open %s position at ltv %s",
		protocol, transition.Position.LoanToValue().String()))
}

// BuildAdjust plans moving an existing position to a new risk ratio.
func BuildAdjust(protocol types.ProtocolKind, transition types.SimulatedTransition) (ActionPlan, error) {
	direction := "down"
	if transition.Flags.IsIncreasingRisk {
		direction = "up"
	}
	return buildPlan(protocol, transition, fmt.Sprintf("adjust %s position %s to ltv %s",
		protocol, direction, transition.Position.LoanToValue().String()))
}

// BuildClose plans a full unwind. The transition must be risk-decreasing and
// leave the position at or below its dust limit.
func BuildClose(protocol types.ProtocolKind, transition types.SimulatedTransition) (ActionPlan, error) {
	if transition.Flags.IsIncreasingRisk {
		return ActionPlan{}, fmt.Errorf("%w: close requires a risk-decreasing transition", types.ErrInvalidAmount)
	}
	if transition.Position.Debt.Amount.GT(transition.Position.Category.DustLimit) {
		return ActionPlan{}, fmt.Errorf("%w: residual debt %s is above the dust limit",
			types.ErrInvalidAmount, transition.Position.Debt.String())
	}
	return buildPlan(protocol, transition, fmt.Sprintf("close %s position", protocol))
}

func buildPlan(protocol types.ProtocolKind, transition types.SimulatedTransition, goal string) (ActionPlan, error) {
	if _, err := types.ParseProtocolKind(protocol.String()); err != nil {
		return ActionPlan{}, err
	}
	if transition.Delta.Debt.IsZero() && transition.Delta.Collateral.IsZero() {
		return ActionPlan{}, ErrEmptyTransition
	}

	var steps []Step
	if transition.Flags.IsIncreasingRisk {
		steps = increaseSteps(protocol, transition)
	} else {
		steps = decreaseSteps(protocol, transition)
	}

	planLogger.Debug().
		Str("protocol", protocol.String()).
		Int("steps", len(steps)).
		Bool("flashloan", transition.Flags.RequiresFlashloan).
		Msg("Action plan built")

	return ActionPlan{GoalDescription: goal, Protocol: protocol, Steps: steps}, nil
}

// increaseSteps sequences a leverage-up: pre-fund, swap debt token into
// collateral, deposit, borrow against it, settle the flashloan.
func increaseSteps(protocol types.ProtocolKind, t types.SimulatedTransition) []Step {
	var steps []Step
	if t.Flags.RequiresFlashloan {
		steps = append(steps, flashloanTake(t))
	}
	swapStep := Step{
		Kind:         StepSwap,
		Token:        t.Swap.FromTokenAmount.Token,
		Amount:       t.Swap.FromTokenAmount.Amount,
		TokenOut:     t.Swap.MinToTokenAmount.Token,
		MinAmountOut: t.Swap.MinToTokenAmount.Amount,
	}
	deposit := Step{Kind: StepDeposit, Token: t.Position.Collateral.Token, Amount: t.Delta.Collateral}
	borrow := Step{Kind: StepBorrow, Token: t.Position.Debt.Token, Amount: t.Delta.Debt}

	switch protocol {
	case types.ProtocolMorphoBlue:
		// Morpho's supply callback lets the swap run inside the deposit, so
		// the borrow directly settles the flashloan.
		steps = append(steps, deposit, swapStep, borrow)
	default:
		// Aave v2/v3, Spark and Ajna all require collateral to exist before
		// the borrow is recognized.
		steps = append(steps, swapStep, deposit, borrow)
	}
	if t.Flags.RequiresFlashloan {
		steps = append(steps, flashloanRepay(t))
	}
	return steps
}

// decreaseSteps sequences a de-leverage: pre-fund the repayment, repay,
// release collateral, swap it back into debt token, settle the flashloan.
func decreaseSteps(protocol types.ProtocolKind, t types.SimulatedTransition) []Step {
	var steps []Step
	if t.Flags.RequiresFlashloan {
		steps = append(steps, flashloanTake(t))
	}
	repay := Step{Kind: StepRepay, Token: t.Position.Debt.Token, Amount: t.Delta.Debt.Abs()}
	withdraw := Step{Kind: StepWithdraw, Token: t.Position.Collateral.Token, Amount: t.Delta.Collateral.Abs()}
	swapStep := Step{
		Kind:         StepSwap,
		Token:        t.Swap.FromTokenAmount.Token,
		Amount:       t.Swap.FromTokenAmount.Amount,
		TokenOut:     t.Swap.MinToTokenAmount.Token,
		MinAmountOut: t.Swap.MinToTokenAmount.Amount,
	}

	// Ajna settles repay and withdraw in a single pool call; the plan still
	// carries them as separate steps in that order.
	steps = append(steps, repay, withdraw, swapStep)
	if t.Flags.RequiresFlashloan {
		steps = append(steps, flashloanRepay(t))
	}
	return steps
}

func flashloanTake(t types.SimulatedTransition) Step {
	return Step{Kind: StepFlashloanTake, Token: t.Delta.FlashloanAmount.Token, Amount: t.Delta.FlashloanAmount.Amount}
}

func flashloanRepay(t types.SimulatedTransition) Step {
	return Step{Kind: StepFlashloanRepay, Token: t.Delta.FlashloanAmount.Token, Amount: t.Delta.FlashloanAmount.Amount}
}
