package hgrpc

import (
	"context"

	"github.com/Izanagi078/Final-Work/internal/usecase"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/structpb"
)

type LedgerHandler struct {
	engine    *usecase.LedgerEngine
	accountUC *usecase.AccountUsecase
}

func NewLedgerGRPCHandler(engine *usecase.LedgerEngine, accountUC *usecase.AccountUsecase) *LedgerHandler {
	return &LedgerHandler{engine: engine, accountUC: accountUC}
}

var _ LedgerServiceServer = (*LedgerHandler)(nil)

// ===============================
// MONEY MOVEMENTS
// ===============================

func (h *LedgerHandler) Deposit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	accNo, amount, err := accountAndAmount(req)
	if err != nil {
		return nil, handleUsecaseError(err)
	}
	res, err := h.engine.Deposit(ctx, accNo, amount)
	if err != nil {
		return nil, handleUsecaseError(err)
	}
	return toStruct(mutationFields(res))
}

func (h *LedgerHandler) Withdraw(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	accNo, amount, err := accountAndAmount(req)
	if err != nil {
		return nil, handleUsecaseError(err)
	}
	res, err := h.engine.Withdraw(ctx, accNo, amount)
	if err != nil {
		return nil, handleUsecaseError(err)
	}
	return toStruct(mutationFields(res))
}

func (h *LedgerHandler) Transfer(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	from, amount, err := accountAndAmount(req)
	if err != nil {
		return nil, handleUsecaseError(err)
	}
	to, err := stringField(req, "to")
	if err != nil {
		return nil, handleUsecaseError(err)
	}
	res, err := h.engine.Transfer(ctx, from, to, amount)
	if err != nil {
		return nil, handleUsecaseError(err)
	}
	return toStruct(map[string]any{
		"from": mutationFields(res.From),
		"to":   mutationFields(res.To),
	})
}

func (h *LedgerHandler) TakeLoan(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	accNo, amount, err := accountAndAmount(req)
	if err != nil {
		return nil, handleUsecaseError(err)
	}
	res, err := h.engine.TakeLoan(ctx, accNo, amount)
	if err != nil {
		return nil, handleUsecaseError(err)
	}
	fields := mutationFields(res.MutationResult)
	fields["interest_rate"] = res.InterestRate.String()
	fields["max_loan"] = res.MaxLoan.StringFixed(2)
	return toStruct(fields)
}

func (h *LedgerHandler) ReturnLoan(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	accNo, amount, err := accountAndAmount(req)
	if err != nil {
		return nil, handleUsecaseError(err)
	}
	res, err := h.engine.ReturnLoan(ctx, accNo, amount)
	if err != nil {
		return nil, handleUsecaseError(err)
	}
	return toStruct(mutationFields(res))
}

// ===============================
// READS
// ===============================

func (h *LedgerHandler) GetAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	accNo, err := stringField(req, "account_number")
	if err != nil {
		return nil, handleUsecaseError(err)
	}
	acc, err := h.accountUC.GetAccount(ctx, accNo)
	if err != nil {
		return nil, handleUsecaseError(err)
	}
	return toStruct(map[string]any{
		"account_number": acc.AccountNumber,
		"username":       acc.Username,
		"email":          acc.Email,
		"routing_code":   acc.RoutingCode,
		"balance":        acc.Balance.String(),
		"loan_amount":    acc.LoanAmount.String(),
		"credit_score":   acc.CreditScore,
	})
}

func accountAndAmount(req *structpb.Struct) (string, decimal.Decimal, error) {
	accNo, err := stringField(req, "account_number")
	if err != nil {
		return "", decimal.Zero, err
	}
	amount, err := amountField(req, "amount")
	if err != nil {
		return "", decimal.Zero, err
	}
	return accNo, amount, nil
}
