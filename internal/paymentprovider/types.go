package paymentprovider

// Статусы платежа, которые возвращает ЮKassa.
const (
	StatusPending   = "pending"
	StatusSucceeded = "succeeded"
	StatusCanceled  = "canceled"
	StatusExpired   = "expired"
)

// Amount сумма платежа.
type Amount struct {
	Value    string `json:"value"`    // Сумма в формате "299.00"
	Currency string `json:"currency"` // Код валюты, например "RUB"
}

// Confirmation способ подтверждения платежа пользователем.
type Confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

// CreatePaymentRequest запрос на создание платежа.
type CreatePaymentRequest struct {
	Amount       Amount            `json:"amount"`
	Confirmation Confirmation      `json:"confirmation"`
	Capture      bool              `json:"capture"`
	Description  string            `json:"description"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Payment платеж, как его видит ЮKassa: и ответ на создание,
// и результат запроса статуса.
type Payment struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	Amount       Amount            `json:"amount"`
	Confirmation Confirmation      `json:"confirmation"`
	Metadata     map[string]string `json:"metadata"`
}
