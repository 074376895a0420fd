package validation

// CheckoutRequest is the payload for POST /api/checkout.
type CheckoutRequest struct {
	CustomerID    string        `json:"customer_id" validate:"required,max=64"`
	Customer      CustomerInput `json:"customer"`
	Items         []ItemInput   `json:"items" validate:"required,min=1,max=50,dive"`
	PaymentMethod string        `json:"payment_method" validate:"required,oneof=pix credit_card redirect"`
	CardToken     string        `json:"card_token,omitempty"`
	Provider      string        `json:"provider" validate:"required,oneof=mercadopago pagarme"`
	Address       AddressInput  `json:"address"`
}

type CustomerInput struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Document string `json:"document" validate:"required,numeric,min=11,max=14"` // CPF or CNPJ digits
	Phone    string `json:"phone,omitempty" validate:"omitempty,max=20"`
}

type ItemInput struct {
	ProductID uint `json:"product_id" validate:"required"`
	Quantity  int  `json:"quantity" validate:"required,min=1,max=100"`
}

type AddressInput struct {
	Line       string `json:"line" validate:"required,max=200"`
	City       string `json:"city" validate:"required,max=100"`
	State      string `json:"state" validate:"required,len=2"`
	PostalCode string `json:"postal_code" validate:"required,postal_code"`
}

type CreateProductRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Price int64  `json:"price" validate:"gt=0"` // centavos
	Stock int64  `json:"stock" validate:"min=0"`
}

// SetStockRequest overwrites stock. Zero is a valid value, hence the pointer.
type SetStockRequest struct {
	Stock *int64 `json:"stock" validate:"required,min=0"`
}

type AdjustStockRequest struct {
	Delta int64 `json:"delta" validate:"required"`
}

type MarkReadRequest struct {
	Read *bool `json:"read" validate:"required"`
}
