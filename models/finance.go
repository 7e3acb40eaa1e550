package models

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bitbucket.org/mmdatafocus/erp_backend/config"
	"bitbucket.org/mmdatafocus/erp_backend/utils"
)

// FixedExpensesAccountName is the system balance account monthly
// counterparty charges post against.
const FixedExpensesAccountName = "Fixed expenses"

// BalanceHolder is any record a transaction can credit or debit. Holders
// are fetched through the registry by (type, id), row-locked, so a
// transaction workflow never touches the concrete tables directly.
type BalanceHolder interface {
	HolderType() BalanceHolderType
	HolderId() int
	HolderName() string
	CurrentBalance() decimal.Decimal
	ApplyDelta(tx *gorm.DB, delta decimal.Decimal) error
}

type CashRegister struct {
	ID        int             `gorm:"primary_key" json:"id"`
	Name      string          `gorm:"size:200;not null" json:"name"`
	Balance   decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"balance"`
	IsActive  *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type BalanceAccount struct {
	ID        int             `gorm:"primary_key" json:"id"`
	Name      string          `gorm:"size:200;uniqueIndex;not null" json:"name"`
	Code      string          `gorm:"size:10" json:"code"`
	Balance   decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"balance"`
	IsSystem  *bool           `gorm:"not null;default:false" json:"is_system"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// Counterparty is a customer or supplier account. When AutoCharge is set,
// the monthly ChargeAmount is posted against the fixed-expenses account in
// daily slices while the charge period is open: ChargePeriodMonths months
// counted from CreatedAt.
type Counterparty struct {
	ID                 int             `gorm:"primary_key" json:"id"`
	Name               string          `gorm:"size:200;not null" json:"name"`
	Phone              string          `gorm:"size:30" json:"phone"`
	Balance            decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"balance"`
	ChargeAmount       decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"charge_amount"`
	ChargePeriodMonths int             `gorm:"not null;default:0" json:"charge_period_months"`
	AutoCharge         *bool           `gorm:"not null;default:false" json:"auto_charge"`
	IsActive           *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// InChargePeriod reports whether the counterparty's charge window is still
// open on the given day: the window closes once CreatedAt plus
// ChargePeriodMonths months falls before today. Dates compare at day
// granularity, so the closing day itself is still charged.
func (c *Counterparty) InChargePeriod(now time.Time) bool {
	end := c.CreatedAt.AddDate(0, c.ChargePeriodMonths, 0)
	endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return !endDay.Before(today)
}

func (c *CashRegister) HolderType() BalanceHolderType { return BalanceHolderTypeCashRegister }
func (c *CashRegister) HolderId() int { return c.ID }
func (c *CashRegister) HolderName() string { return c.Name }
func (c *CashRegister) CurrentBalance() decimal.Decimal { return c.Balance }
func (c *CashRegister) ApplyDelta(tx *gorm.DB, delta decimal.Decimal) error {
	c.Balance = c.Balance.Add(delta)
	return tx.Model(c).Update("balance", c.Balance).Error
}

func (a *BalanceAccount) HolderType() BalanceHolderType { return BalanceHolderTypeBalanceAccount }
func (a *BalanceAccount) HolderId() int { return a.ID }
func (a *BalanceAccount) HolderName() string { return a.Name }
func (a *BalanceAccount) CurrentBalance() decimal.Decimal { return a.Balance }
func (a *BalanceAccount) ApplyDelta(tx *gorm.DB, delta decimal.Decimal) error {
	a.Balance = a.Balance.Add(delta)
	return tx.Model(a).Update("balance", a.Balance).Error
}

func (c *Counterparty) HolderType() BalanceHolderType { return BalanceHolderTypeCounterparty }
func (c *Counterparty) HolderId() int { return c.ID }
func (c *Counterparty) HolderName() string { return c.Name }
func (c *Counterparty) CurrentBalance() decimal.Decimal { return c.Balance }
func (c *Counterparty) ApplyDelta(tx *gorm.DB, delta decimal.Decimal) error {
	c.Balance = c.Balance.Add(delta)
	return tx.Model(c).Update("balance", c.Balance).Error
}

// balanceHolderFetchers maps the enum onto locked fetches of the concrete
// tables. New holder kinds register here and nowhere else.
var balanceHolderFetchers = map[BalanceHolderType]func(tx *gorm.DB, id int) (BalanceHolder, error){
	BalanceHolderTypeCashRegister: func(tx *gorm.DB, id int) (BalanceHolder, error) {
		var holder CashRegister
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&holder, id).Error; err != nil {
			return nil, utils.ErrorRecordNotFound
		}
		return &holder, nil
	},
	BalanceHolderTypeBalanceAccount: func(tx *gorm.DB, id int) (BalanceHolder, error) {
		var holder BalanceAccount
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&holder, id).Error; err != nil {
			return nil, utils.ErrorRecordNotFound
		}
		return &holder, nil
	},
	BalanceHolderTypeCounterparty: func(tx *gorm.DB, id int) (BalanceHolder, error) {
		var holder Counterparty
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&holder, id).Error; err != nil {
			return nil, utils.ErrorRecordNotFound
		}
		return &holder, nil
	},
}

// FetchBalanceHolder resolves and row-locks a balance holder by type and id.
func FetchBalanceHolder(tx *gorm.DB, holderType BalanceHolderType, id int) (BalanceHolder, error) {
	fetch, ok := balanceHolderFetchers[holderType]
	if !ok {
		return nil, fmt.Errorf("unknown balance holder type: %s", holderType)
	}
	return fetch(tx, id)
}

// Transaction moves Amount from the credit holder to the debit holder when
// published; canceling posts the exact inverse. Draft transactions touch no
// balances.
type Transaction struct {
	ID         int               `gorm:"primary_key" json:"id"`
	Amount     decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"amount"`
	Status     TransactionStatus `gorm:"size:20;not null;index;default:'draft'" json:"status"`
	CreditType BalanceHolderType `gorm:"size:30;not null" json:"credit_type"`
	CreditId   int               `gorm:"index;not null" json:"credit_id"`
	DebitType  BalanceHolderType `gorm:"size:30;not null" json:"debit_type"`
	DebitId    int               `gorm:"index;not null" json:"debit_id"`
	Comment    string            `gorm:"type:text" json:"comment"`
	CreatedBy  int               `gorm:"index" json:"created_by"`
	CreatedAt  time.Time         `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// BalanceChange is the audit trail of every balance mutation a transaction
// caused.
type BalanceChange struct {
	ID            int               `gorm:"primary_key" json:"id"`
	TransactionId int               `gorm:"index;not null" json:"transaction_id"`
	HolderType    BalanceHolderType `gorm:"size:30;not null" json:"holder_type"`
	HolderId      int               `gorm:"index;not null" json:"holder_id"`
	Delta         decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"delta"`
	BalanceAfter  decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"balance_after"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

// RecordBalanceChange appends one audit row after a holder mutation.
func RecordBalanceChange(tx *gorm.DB, transactionId int, holder BalanceHolder, delta decimal.Decimal) error {
	change := BalanceChange{
		TransactionId: transactionId,
		HolderType:    holder.HolderType(),
		HolderId:      holder.HolderId(),
		Delta:         delta,
		BalanceAfter:  holder.CurrentBalance(),
	}
	return tx.Create(&change).Error
}

type NewTransaction struct {
	Amount     decimal.Decimal `json:"amount" validate:"required"`
	CreditType string          `json:"credit_type" validate:"required"`
	CreditId   int             `json:"credit_id" validate:"required"`
	DebitType  string          `json:"debit_type" validate:"required"`
	DebitId    int             `json:"debit_id" validate:"required"`
	Comment    string          `json:"comment"`
}

// CreateTransaction stores a draft transaction. Publishing is a separate
// step.
func CreateTransaction(ctx context.Context, input *NewTransaction) (*Transaction, error) {

	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive")
	}
	creditType, err := ParseBalanceHolderType(input.CreditType)
	if err != nil {
		return nil, err
	}
	debitType, err := ParseBalanceHolderType(input.DebitType)
	if err != nil {
		return nil, err
	}
	if creditType == debitType && input.CreditId == input.DebitId {
		return nil, fmt.Errorf("credit and debit sides must differ")
	}

	userId, _ := utils.GetUserIdFromContext(ctx)

	transaction := Transaction{
		Amount:     input.Amount,
		Status:     TransactionStatusDraft,
		CreditType: creditType,
		CreditId:   input.CreditId,
		DebitType:  debitType,
		DebitId:    input.DebitId,
		Comment:    input.Comment,
		CreatedBy:  userId,
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// both sides must resolve before the draft is accepted
		if _, err := FetchBalanceHolder(tx, creditType, input.CreditId); err != nil {
			return fmt.Errorf("credit holder: %w", err)
		}
		if _, err := FetchBalanceHolder(tx, debitType, input.DebitId); err != nil {
			return fmt.Errorf("debit holder: %w", err)
		}
		return tx.Create(&transaction).Error
	})
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

func GetTransaction(ctx context.Context, id int) (*Transaction, error) {
	return utils.FetchModel[Transaction](ctx, id)
}

func ListTransactions(ctx context.Context, status TransactionStatus) ([]*Transaction, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	if status != "" {
		dbCtx = dbCtx.Where("status = ?", status)
	}
	var transactions []*Transaction
	err := dbCtx.Order("created_at DESC, id DESC").Find(&transactions).Error
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

// ListAutoChargeCounterparties returns the active counterparties enrolled
// in monthly auto charging whose charge period is still open on the given
// day.
func ListAutoChargeCounterparties(ctx context.Context, now time.Time) ([]*Counterparty, error) {
	db := config.GetDB()
	var counterparties []*Counterparty
	err := db.WithContext(ctx).
		Where("auto_charge = true AND is_active = true AND charge_amount > 0").
		Order("id ASC").
		Find(&counterparties).Error
	if err != nil {
		return nil, err
	}
	inPeriod := counterparties[:0]
	for _, counterparty := range counterparties {
		if counterparty.InChargePeriod(now) {
			inPeriod = append(inPeriod, counterparty)
		}
	}
	return inPeriod, nil
}

// systemBalanceAccounts is the chart of accounts the engine posts against.
// Codes follow the national chart of accounts numbering.
var systemBalanceAccounts = []struct {
	Name string
	Code string
}{
	{FixedExpensesAccountName, "9430"},
	{"Variable expenses", "9435"},
	{"Revenue", "9030"},
	{"Cost of goods", "9130"},
	{"Depreciation", "9450"},
	{"Profit", "9910"},
	{"Fixed salaries", "9420"},
	{"Variable salaries", "9425"},
	{"Fixed assets", "0100"},
	{"Intermediaries", "4030"},
	{"Dividends", "9910"},
	{"Loans", "6800"},
}

// EnsureSystemBalanceAccounts creates the accounts the engine itself posts
// against. Safe to run at every start.
func EnsureSystemBalanceAccounts(ctx context.Context) error {
	db := config.GetDB()
	for _, seed := range systemBalanceAccounts {
		account := BalanceAccount{
			Name:     seed.Name,
			Code:     seed.Code,
			IsSystem: utils.NewTrue(),
		}
		err := db.WithContext(ctx).
			Where("name = ?", seed.Name).
			FirstOrCreate(&account).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// GetFixedExpensesAccount resolves the system account auto charges debit.
func GetFixedExpensesAccount(tx *gorm.DB) (*BalanceAccount, error) {
	var account BalanceAccount
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("name = ?", FixedExpensesAccountName).
		First(&account).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &account, nil
}
