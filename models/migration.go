package models

import (
	"log"

	"bitbucket.org/mmdatafocus/erp_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Warehouse{},
		&Part{}, &Container{}, &ContainerPart{},
		&Product{}, &ProductContainer{}, &ProductPart{},
		&Invoice{}, &InvoiceContainerLine{}, &InvoicePartLine{}, &InvoiceProductLine{}, &InvoiceUnitLine{}, &InvoiceLog{},
		&ProductLot{}, &ContainerLot{}, &PartLot{},
		&LotConsumption{}, &UnitTransfer{}, &Debt{},
		&Markup{}, &MarkupFilter{}, &ProductUnit{},
		&CashRegister{}, &BalanceAccount{}, &Counterparty{},
		&Transaction{}, &BalanceChange{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
