package common

import (
	"context"
	"fmt"
	"strings"

	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/store"

	"go.uber.org/zap"
)

// Account is one user as the operator reports show them.
type Account struct {
	models.User
	// Positions holds the user's active copy positions when the report
	// asked for them.
	Positions []models.CopyPosition
}

// AccountFilter narrows a report to a single user. Both fields empty means
// every user.
type AccountFilter struct {
	UserId string
	Email  string
}

// PositionLister is the copy-trading read the balance report needs.
type PositionLister interface {
	ListActivePositions(ctx context.Context) ([]models.CopyPosition, error)
}

// LoadAccounts resolves the users a report covers. When positions is not
// nil each account carries its active copy positions.
func LoadAccounts(ctx context.Context, users store.UserStore, positions PositionLister, filter AccountFilter) ([]Account, error) {
	selected, err := selectUsers(ctx, users, filter)
	if err != nil {
		return nil, err
	}

	accounts := make([]Account, len(selected))
	index := make(map[string]int, len(selected))
	for i, u := range selected {
		accounts[i] = Account{User: u}
		index[u.Id] = i
	}

	if positions != nil {
		active, err := positions.ListActivePositions(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list copy positions: %w", err)
		}
		for _, pos := range active {
			if i, ok := index[pos.UserId]; ok {
				accounts[i].Positions = append(accounts[i].Positions, pos)
			}
		}
	}

	zap.L().Info("Loaded accounts",
		zap.Int("count", len(accounts)),
		zap.String("user_id", filter.UserId),
		zap.String("email", filter.Email))
	return accounts, nil
}

func selectUsers(ctx context.Context, users store.UserStore, filter AccountFilter) ([]models.User, error) {
	switch {
	case filter.UserId != "":
		user, err := users.GetUserById(ctx, strings.TrimSpace(filter.UserId))
		if err != nil {
			return nil, err
		}
		if filter.Email != "" && !strings.EqualFold(user.Email, strings.TrimSpace(filter.Email)) {
			return nil, fmt.Errorf("%w: user %s does not have email %s", store.ErrInvalidRequest, user.Id, filter.Email)
		}
		return []models.User{*user}, nil
	case filter.Email != "":
		user, err := users.GetUserByEmail(ctx, strings.TrimSpace(filter.Email))
		if err != nil {
			return nil, err
		}
		return []models.User{*user}, nil
	default:
		all, err := users.GetUsers(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get users: %w", err)
		}
		return all, nil
	}
}
