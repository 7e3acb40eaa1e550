package workflow

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/erp_backend/config"
	"bitbucket.org/mmdatafocus/erp_backend/models"
)

const financePostingScope = "finance"

// postAmount applies one money movement to both sides of a transaction:
// the credit side loses amount, the debit side gains it. Cancellation calls
// this with the amount negated, which is the exact inverse.
func postAmount(tx *gorm.DB, transactionId int, credit models.BalanceHolder, debit models.BalanceHolder, amount decimal.Decimal) error {

	if err := credit.ApplyDelta(tx, amount.Neg()); err != nil {
		return err
	}
	if err := models.RecordBalanceChange(tx, transactionId, credit, amount.Neg()); err != nil {
		return err
	}
	if err := debit.ApplyDelta(tx, amount); err != nil {
		return err
	}
	return models.RecordBalanceChange(tx, transactionId, debit, amount)
}

// PublishTransaction moves the amount between the two holders and marks the
// transaction published.
func PublishTransaction(ctx context.Context, transactionId int) (*models.Transaction, error) {

	db := config.GetDB()
	logger := config.GetLogger()

	var transaction models.Transaction
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {

		if err := AcquirePostingLock(tx, financePostingScope); err != nil {
			return err
		}
		defer ReleasePostingLock(tx, financePostingScope)

		if err := tx.First(&transaction, transactionId).Error; err != nil {
			return err
		}
		if transaction.Status != models.TransactionStatusDraft {
			return fmt.Errorf("transaction %d is %s, only draft transactions can be published", transactionId, transaction.Status)
		}

		credit, err := models.FetchBalanceHolder(tx, transaction.CreditType, transaction.CreditId)
		if err != nil {
			return fmt.Errorf("credit holder: %w", err)
		}
		debit, err := models.FetchBalanceHolder(tx, transaction.DebitType, transaction.DebitId)
		if err != nil {
			return fmt.Errorf("debit holder: %w", err)
		}

		if err := postAmount(tx, transaction.ID, credit, debit, transaction.Amount); err != nil {
			return err
		}

		transaction.Status = models.TransactionStatusPublished
		return tx.Save(&transaction).Error
	})
	if err != nil {
		config.LogError(logger, "transactionWorkflow.go", "PublishTransaction", "Transaction", transactionId, err)
		return nil, err
	}
	return &transaction, nil
}

// CancelTransaction posts the inverse movement and marks the transaction
// canceled.
func CancelTransaction(ctx context.Context, transactionId int) (*models.Transaction, error) {

	db := config.GetDB()
	logger := config.GetLogger()

	var transaction models.Transaction
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {

		if err := AcquirePostingLock(tx, financePostingScope); err != nil {
			return err
		}
		defer ReleasePostingLock(tx, financePostingScope)

		if err := tx.First(&transaction, transactionId).Error; err != nil {
			return err
		}
		if transaction.Status != models.TransactionStatusPublished {
			return fmt.Errorf("transaction %d is %s, only published transactions can be canceled", transactionId, transaction.Status)
		}

		credit, err := models.FetchBalanceHolder(tx, transaction.CreditType, transaction.CreditId)
		if err != nil {
			return fmt.Errorf("credit holder: %w", err)
		}
		debit, err := models.FetchBalanceHolder(tx, transaction.DebitType, transaction.DebitId)
		if err != nil {
			return fmt.Errorf("debit holder: %w", err)
		}

		if err := postAmount(tx, transaction.ID, credit, debit, transaction.Amount.Neg()); err != nil {
			return err
		}

		transaction.Status = models.TransactionStatusCanceled
		return tx.Save(&transaction).Error
	})
	if err != nil {
		config.LogError(logger, "transactionWorkflow.go", "CancelTransaction", "Transaction", transactionId, err)
		return nil, err
	}
	return &transaction, nil
}
