package models

// Plan описывает вариант покупки подписки.
type Plan struct {
	Name        string           `validate:"required"`
	Amount      float64          `validate:"required,gt=0"` // Стоимость в рублях
	Days        int              `validate:"required,gt=0"` // Срок действия в днях
	Type        SubscriptionType `validate:"required"`
	Description string
}

// Plans содержит доступные варианты покупки.
var Plans = map[string]Plan{
	"premium_30":  {Name: "premium_30", Amount: 299.00, Days: 30, Type: SubscriptionPremium, Description: "Премиум подписка"},
	"premium_90":  {Name: "premium_90", Amount: 699.00, Days: 90, Type: SubscriptionPremium, Description: "Премиум подписка на 3 месяца"},
	"premium_365": {Name: "premium_365", Amount: 1999.00, Days: 365, Type: SubscriptionPremium, Description: "Премиум подписка на год"},
}
