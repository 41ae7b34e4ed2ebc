package repository

import (
	"gorm.io/gorm"

	"github.com/customeros/mailwarden/interfaces"
)

type Repositories struct {
	DomainRepository         interfaces.DomainRepository
	SenderRepository         interfaces.SenderRepository
	BounceRecordRepository   interfaces.BounceRecordRepository
	SuppressionRepository    interfaces.SuppressionRepository
	TrainingConfigRepository interfaces.TrainingConfigRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		DomainRepository:         NewDomainRepository(db),
		SenderRepository:         NewSenderRepository(db),
		BounceRecordRepository:   NewBounceRecordRepository(db),
		SuppressionRepository:    NewSuppressionRepository(db),
		TrainingConfigRepository: NewTrainingConfigRepository(db),
	}
}
