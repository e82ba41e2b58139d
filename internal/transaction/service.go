package transaction

import (
	"context"
	"fmt"

	"github.com/hamedsh/walletledger/internal/common/logger"
)

type Service struct {
	repo   *Repository
	logger *logger.Logger
}

func NewService(repo *Repository, log *logger.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: log,
	}
}

// List returns a wallet's transactions, newest first.
func (s *Service) List(ctx context.Context, walletUUID string, filter ListFilter) ([]Transaction, error) {
	if err := ValidateListFilter(&filter); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	exists, err := s.repo.WalletExistsByUUID(ctx, walletUUID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrWalletNotFound
	}

	txs, err := s.repo.ListByWallet(ctx, walletUUID, filter)
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []Transaction{}
	}
	return txs, nil
}

// Get returns one of a wallet's transactions.
func (s *Service) Get(ctx context.Context, walletUUID string, id int64) (*Transaction, error) {
	return s.repo.FindByWalletAndID(ctx, walletUUID, id)
}
