package handlers

import (
	"github.com/customeros/mailwarden/interfaces"
)

type APIHandlers struct {
	Training     *TrainingHandler
	Domains      *DomainHandler
	Suppressions *SuppressionHandler
}

func InitHandlers(trainer Trainer, monitor Monitor, bounce BounceTester, suppression interfaces.SuppressionService) *APIHandlers {
	return &APIHandlers{
		Training:     NewTrainingHandler(trainer, monitor),
		Domains:      NewDomainHandler(monitor, bounce),
		Suppressions: NewSuppressionHandler(suppression),
	}
}
