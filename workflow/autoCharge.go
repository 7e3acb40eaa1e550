package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/erp_backend/config"
	"bitbucket.org/mmdatafocus/erp_backend/models"
	"bitbucket.org/mmdatafocus/erp_backend/utils"
)

const autoChargeLockKey = "lock:auto-charge"

// RunAutoCharge posts today's slice of every enrolled counterparty's
// monthly charge against the fixed-expenses account: charge_amount divided
// by the number of days in the current month. One redis lock guards the run
// so overlapping schedulers never double-charge; if redis is unavailable
// the run proceeds, relying on the DB posting lock for safety.
func RunAutoCharge(ctx context.Context, now time.Time) (int, error) {

	logger := config.GetLogger()

	redisLock := config.GetRedisLock()
	if redisLock == nil {
		logger.WithFields(logrus.Fields{
			"field": "autoCharge",
		}).Warn("redis lock not ready; proceeding without redis lock")
	} else {
		lock, err := redisLock.Obtain(ctx, autoChargeLockKey, 5*time.Minute, nil)
		if err == redislock.ErrNotObtained {
			logger.WithFields(logrus.Fields{
				"field": "autoCharge",
			}).Warn("auto charge already running elsewhere; skipping")
			return 0, nil
		} else if err != nil {
			logger.WithFields(logrus.Fields{
				"field": "autoCharge",
			}).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
		} else {
			defer func() {
				if releaseErr := lock.Release(ctx); releaseErr != nil {
					logger.WithFields(logrus.Fields{
						"field": "autoCharge",
					}).Warn("failed to release redis lock: " + releaseErr.Error())
				}
			}()
		}
	}

	counterparties, err := models.ListAutoChargeCounterparties(ctx, now)
	if err != nil {
		config.LogError(logger, "autoCharge.go", "RunAutoCharge", "ListAutoChargeCounterparties", nil, err)
		return 0, err
	}

	daysInMonth := decimal.NewFromInt(int64(daysIn(now)))
	charged := 0

	for _, counterparty := range counterparties {
		amount := utils.RoundMoney(counterparty.ChargeAmount.Div(daysInMonth))
		if !amount.IsPositive() {
			continue
		}
		if err := chargeCounterparty(ctx, counterparty, amount, now); err != nil {
			config.LogError(logger, "autoCharge.go", "RunAutoCharge", "chargeCounterparty", counterparty.ID, err)
			return charged, err
		}
		charged++
	}
	return charged, nil
}

// chargeCounterparty creates and publishes one charge transaction: the
// counterparty's balance goes down, the fixed-expenses account goes up.
func chargeCounterparty(ctx context.Context, counterparty *models.Counterparty, amount decimal.Decimal, now time.Time) error {

	db := config.GetDB()

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {

		if err := AcquirePostingLock(tx, financePostingScope); err != nil {
			return err
		}
		defer ReleasePostingLock(tx, financePostingScope)

		account, err := models.GetFixedExpensesAccount(tx)
		if err != nil {
			return err
		}
		credit, err := models.FetchBalanceHolder(tx, models.BalanceHolderTypeCounterparty, counterparty.ID)
		if err != nil {
			return err
		}

		transaction := models.Transaction{
			Amount:     amount,
			Status:     models.TransactionStatusPublished,
			CreditType: models.BalanceHolderTypeCounterparty,
			CreditId:   counterparty.ID,
			DebitType:  models.BalanceHolderTypeBalanceAccount,
			DebitId:    account.ID,
			Comment:    fmt.Sprintf("auto charge %s", now.Format("2006-01-02")),
		}
		if err := tx.Create(&transaction).Error; err != nil {
			return err
		}
		return postAmount(tx, transaction.ID, credit, account, amount)
	})
}

func daysIn(t time.Time) int {
	firstOfMonth := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return firstOfMonth.AddDate(0, 1, -1).Day()
}
