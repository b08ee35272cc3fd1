package market

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

func (e *Engine) requireAdmin(caller common.Address) error {
	if caller != e.cfg.Admin {
		return ErrNotAuthorized
	}
	return nil
}

// SetFee changes the fee rate applied to future settlements.
func (e *Engine) SetFee(ctx context.Context, caller common.Address, bps uint32) error {
	return e.mutate(ctx, "set_fee", caller, func(ctx context.Context, c *call) error {
		if err := e.requireAdmin(caller); err != nil {
			return err
		}
		if bps > MaxFeeBps {
			return ErrFeeTooHigh
		}

		c.state.FeeBps = bps
		c.emit(Event{Type: EventFeeUpdated, Actor: caller, Amount: int64(bps)})
		return nil
	})
}

// Pause stops every trading operation except cancellations and ending
// auctions that drew no bids.
func (e *Engine) Pause(ctx context.Context, caller common.Address) error {
	return e.mutate(ctx, "pause", caller, func(ctx context.Context, c *call) error {
		if err := e.requireAdmin(caller); err != nil {
			return err
		}
		if c.state.Paused {
			return ErrAlreadyPaused
		}

		c.state.Paused = true
		c.emit(Event{Type: EventPaused, Actor: caller})
		return nil
	})
}

func (e *Engine) Unpause(ctx context.Context, caller common.Address) error {
	return e.mutate(ctx, "unpause", caller, func(ctx context.Context, c *call) error {
		if err := e.requireAdmin(caller); err != nil {
			return err
		}
		if !c.state.Paused {
			return ErrNotPaused
		}

		c.state.Paused = false
		c.emit(Event{Type: EventUnpaused, Actor: caller})
		return nil
	})
}

// Withdraw pays the whole treasury to the admin and returns the amount paid.
func (e *Engine) Withdraw(ctx context.Context, caller common.Address) (int64, error) {
	var amount int64
	err := e.mutate(ctx, "withdraw", caller, func(ctx context.Context, c *call) error {
		if err := e.requireAdmin(caller); err != nil {
			return err
		}
		if c.state.Treasury == 0 {
			return ErrNothingToWithdraw
		}

		amount = c.state.Treasury
		c.state.Treasury = 0
		if err := e.funds.Send(ctx, e.cfg.Admin, amount); err != nil {
			return wrap(ErrWithdrawFailed, err)
		}

		c.emit(Event{Type: EventFeesWithdrawn, Actor: caller, Amount: amount})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return amount, nil
}
