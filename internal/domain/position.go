package domain

import "time"

// Position tracks the shares a user holds in one option. Positions are never
// deleted; a claimed position remains as a historical record.
type Position struct {
	ID        string
	UserID    string
	OptionID  string
	YesShares int64
	NoShares  int64
	IsClaimed bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SharesOn returns the share count held on the given side.
func (p Position) SharesOn(side Side) int64 {
	if side == SideYes {
		return p.YesShares
	}
	return p.NoShares
}
