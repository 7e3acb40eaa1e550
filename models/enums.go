package models

import "fmt"

type MeasurementType string

const (
	MeasurementTypeQuantity MeasurementType = "q"
	MeasurementTypeLiter    MeasurementType = "l"
	MeasurementTypeKilogram MeasurementType = "kg"
)

func ParseMeasurementType(s string) (MeasurementType, error) {
	switch MeasurementType(s) {
	case MeasurementTypeQuantity, MeasurementTypeLiter, MeasurementTypeKilogram:
		return MeasurementType(s), nil
	}
	return "", fmt.Errorf("invalid measurement type: %s", s)
}

type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusPublished InvoiceStatus = "published"
	InvoiceStatusCanceled  InvoiceStatus = "canceled"
)

func ParseInvoiceStatus(s string) (InvoiceStatus, error) {
	switch InvoiceStatus(s) {
	case InvoiceStatusDraft, InvoiceStatusPublished, InvoiceStatusCanceled:
		return InvoiceStatus(s), nil
	}
	return "", fmt.Errorf("invalid invoice status: %s", s)
}

type InvoiceType string

const (
	// InvoiceTypeInvoice is an inbound receipt: publishing creates container
	// and part lots in the receiving warehouse.
	InvoiceTypeInvoice InvoiceType = "invoice"
	// InvoiceTypeProduction consumes components by FIFO and creates a product
	// lot plus its serialized units.
	InvoiceTypeProduction InvoiceType = "production"
	// InvoiceTypeExpense is an outbound write-off; shortfalls are tolerated
	// and recorded as debts.
	InvoiceTypeExpense InvoiceType = "expense"
	// InvoiceTypeTransfer moves stock between warehouses; shortfalls abort.
	InvoiceTypeTransfer InvoiceType = "transfer"
)

func ParseInvoiceType(s string) (InvoiceType, error) {
	switch InvoiceType(s) {
	case InvoiceTypeInvoice, InvoiceTypeProduction, InvoiceTypeExpense, InvoiceTypeTransfer:
		return InvoiceType(s), nil
	}
	return "", fmt.Errorf("invalid invoice type: %s", s)
}

type TransactionStatus string

const (
	TransactionStatusDraft     TransactionStatus = "draft"
	TransactionStatusPublished TransactionStatus = "published"
	TransactionStatusCanceled  TransactionStatus = "canceled"
)

type DebtType string

const (
	DebtTypeContainer DebtType = "container"
	DebtTypePart      DebtType = "part"
)

// BalanceHolderType keys the registry of balance-carrying records a
// transaction may credit or debit.
type BalanceHolderType string

const (
	BalanceHolderTypeCashRegister   BalanceHolderType = "cash_register"
	BalanceHolderTypeBalanceAccount BalanceHolderType = "balance_account"
	BalanceHolderTypeCounterparty   BalanceHolderType = "counterparty"
)

func ParseBalanceHolderType(s string) (BalanceHolderType, error) {
	switch BalanceHolderType(s) {
	case BalanceHolderTypeCashRegister, BalanceHolderTypeBalanceAccount, BalanceHolderTypeCounterparty:
		return BalanceHolderType(s), nil
	}
	return "", fmt.Errorf("invalid balance holder type: %s", s)
}
