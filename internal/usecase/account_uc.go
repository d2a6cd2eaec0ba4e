package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Izanagi078/Final-Work/internal/domain"
	"github.com/Izanagi078/Final-Work/internal/pub"
	"github.com/Izanagi078/Final-Work/internal/repository"
	"github.com/Izanagi078/Final-Work/pkg/cache"
	"github.com/Izanagi078/Final-Work/pkg/credential"
	"github.com/Izanagi078/Final-Work/pkg/jwtutil"
	"github.com/Izanagi078/Final-Work/pkg/utils"
	xerrors "github.com/Izanagi078/Final-Work/pkg/utils/errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// account numbers are random; a collision is retried with a fresh one
const maxOpenAttempts = 5

// Session is what a successful login hands back.
type Session struct {
	Account *domain.Account `json:"account"`
	Token   string          `json:"token"`
}

// AccountUsecase owns the account lifecycle around the ledger engine:
// opening, login, PIN checks, reads and the administrative purge.
type AccountUsecase struct {
	store     repository.LedgerStore
	cache     *cache.Cache
	hasher    credential.Hasher
	tokens    *jwtutil.Manager
	ids       *utils.IDGenerator
	publisher pub.Publisher
	clock     func() time.Time
	logger    *zap.Logger
}

func NewAccountUsecase(
	store repository.LedgerStore,
	c *cache.Cache,
	hasher credential.Hasher,
	tokens *jwtutil.Manager,
	ids *utils.IDGenerator,
	publisher pub.Publisher,
	logger *zap.Logger,
) *AccountUsecase {
	if ids == nil {
		ids = utils.NewIDGenerator()
	}
	if publisher == nil {
		publisher = pub.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountUsecase{
		store:     store,
		cache:     c,
		hasher:    hasher,
		tokens:    tokens,
		ids:       ids,
		publisher: publisher,
		clock:     time.Now,
		logger:    logger,
	}
}

func validateOpenRequest(req *domain.OpenAccountRequest) error {
	switch {
	case strings.TrimSpace(req.Username) == "":
		return fmt.Errorf("%w: username is required", xerrors.ErrInvalidRequest)
	case !utils.ValidateEmail(req.Email):
		return xerrors.ErrInvalidEmailFormat
	case !utils.ValidatePassword(req.Password):
		return xerrors.ErrWeakPassword
	case !utils.ValidateMobile(req.MobileNumber):
		return xerrors.ErrInvalidMobile
	case !utils.ValidateNationalID(req.NationalID):
		return xerrors.ErrInvalidNationalID
	}
	return nil
}

// OpenAccount validates and stores a new customer with a zero balance and the
// default score. The clear PIN is returned only here.
func (uc *AccountUsecase) OpenAccount(ctx context.Context, req *domain.OpenAccountRequest) (*domain.OpenedAccount, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Username = strings.TrimSpace(req.Username)
	if err := validateOpenRequest(req); err != nil {
		return nil, err
	}

	if _, err := uc.store.GetByEmail(ctx, req.Email); err == nil {
		return nil, xerrors.ErrAccountExists
	} else if !errors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}

	passwordHash, err := uc.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	pin := uc.ids.Pin()
	pinHash, err := uc.hasher.Hash(pin)
	if err != nil {
		return nil, fmt.Errorf("hash pin: %w", err)
	}

	now := uc.clock()
	acc := &domain.Account{
		UserID:       uc.ids.UserID(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: passwordHash,
		Address:      strings.TrimSpace(req.Address),
		MobileNumber: req.MobileNumber,
		NationalID:   req.NationalID,
		RoutingCode:  domain.DefaultRoutingCode,
		CardNumber:   uc.ids.CardNumber(),
		PinHash:      pinHash,
		Balance:      decimal.Zero,
		CreditScore:  domain.DefaultCreditScore,
		LoanAmount:   decimal.Zero,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	for attempt := 1; ; attempt++ {
		acc.AccountNumber = uc.ids.AccountNumber()
		err = uc.store.InsertCustomer(ctx, acc)
		if err == nil {
			break
		}
		if !errors.Is(err, xerrors.ErrAccountExists) || attempt == maxOpenAttempts {
			return nil, err
		}
		// the email was free a moment ago; a second hit on it is a real duplicate
		if _, lookupErr := uc.store.GetByEmail(ctx, acc.Email); lookupErr == nil {
			return nil, xerrors.ErrAccountExists
		}
	}

	if uc.cache != nil {
		if err := uc.cache.Put(ctx, SummaryOf(acc)); err != nil {
			uc.logger.Warn("cache update failed after account opening",
				zap.String("account_number", acc.AccountNumber), zap.Error(err))
		}
	}

	uc.logger.Info("account opened",
		zap.String("account_number", acc.AccountNumber),
		zap.String("user_id", acc.UserID),
	)
	return &domain.OpenedAccount{Account: acc, Pin: pin}, nil
}

// Login checks email and password and issues a bearer token for the account.
func (uc *AccountUsecase) Login(ctx context.Context, email, password string) (*Session, error) {
	acc, err := uc.authenticateByEmail(ctx, email, password)
	if err != nil {
		return nil, err
	}
	token, err := uc.tokens.Issue(acc.UserID, acc.AccountNumber)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Account: acc, Token: token}, nil
}

func (uc *AccountUsecase) authenticateByEmail(ctx context.Context, email, password string) (*domain.Account, error) {
	acc, err := uc.store.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, xerrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !uc.hasher.Verify(password, acc.PasswordHash) {
		uc.logger.Info("login rejected", zap.String("account_number", acc.AccountNumber))
		return nil, xerrors.ErrInvalidCredentials
	}
	return acc, nil
}

// VerifyPin reports ErrInvalidCredentials when the PIN does not match.
func (uc *AccountUsecase) VerifyPin(ctx context.Context, accountNumber, pin string) error {
	if !utils.ValidatePin(pin) {
		return xerrors.ErrInvalidCredentials
	}
	acc, err := uc.store.GetByAccountNumber(ctx, accountNumber)
	if err != nil {
		return err
	}
	if !uc.hasher.Verify(pin, acc.PinHash) {
		return xerrors.ErrInvalidCredentials
	}
	return nil
}

func (uc *AccountUsecase) GetAccount(ctx context.Context, accountNumber string) (*domain.Account, error) {
	return uc.store.GetByAccountNumber(ctx, accountNumber)
}

// History returns the last records from the store, newest first.
func (uc *AccountUsecase) History(ctx context.Context, accountNumber string) ([]*domain.Transaction, error) {
	if _, err := uc.store.GetByAccountNumber(ctx, accountNumber); err != nil {
		return nil, err
	}
	return uc.store.RecentTransactions(ctx, accountNumber, repository.DefaultHistoryLimit)
}

// RecentFromCache returns the cached history, which only covers mutations
// since the process started.
func (uc *AccountUsecase) RecentFromCache(accountNumber string) []cache.Record {
	if uc.cache == nil {
		return nil
	}
	return uc.cache.Recent(accountNumber)
}

// Purge deletes the customer with its history and drops the cache entry.
func (uc *AccountUsecase) Purge(ctx context.Context, accountNumber string) error {
	if err := uc.store.DeleteCustomer(ctx, accountNumber); err != nil {
		return err
	}

	if uc.cache != nil {
		if err := uc.cache.Remove(context.WithoutCancel(ctx), accountNumber); err != nil {
			uc.logger.Warn("cache removal failed after purge",
				zap.String("account_number", accountNumber), zap.Error(err))
		}
	}

	ev := &pub.LedgerEvent{EventType: "account.purged", AccountNumber: accountNumber, Timestamp: uc.clock()}
	if err := uc.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		uc.logger.Warn("failed to publish purge event",
			zap.String("account_number", accountNumber), zap.Error(err))
	}

	uc.logger.Info("account purged", zap.String("account_number", accountNumber))
	return nil
}
