package models

import (
	"github.com/pawlink/petcircle_backend/config"
	"github.com/pawlink/petcircle_backend/utils"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&User{},
		&AdoptionPost{}, &LostPetPost{},
		&AdoptionRequest{}, &TransferContract{},
		&Notification{},
		&Order{},
		&Image{},
		&JobRecord{},
	)
	utils.ErrorPanic(err)
}
